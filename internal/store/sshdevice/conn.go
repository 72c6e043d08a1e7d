package sshdevice

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// Conn is an authenticated SSH connection to one device.
type Conn interface {
	// Run executes cmd in a new session and returns its standard output along with the
	// remote exit status. A non-zero exit status is not an error, the output is still returned.
	Run(cmd string) (stdout []byte, exitStatus int, err error)

	// Close releases the connection, it must be called even when Run fails.
	Close() error
}

// DialFunc opens a Conn to addr.
type DialFunc func(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error)

type clientConn struct {
	client *ssh.Client
}

// Dial connects and authenticates, bounding both by config.Timeout.
func Dial(ctx context.Context, addr string, config *ssh.ClientConfig) (Conn, error) {
	dialer := &net.Dialer{Timeout: config.Timeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if config.Timeout > 0 {
		if err := netConn.SetDeadline(time.Now().Add(config.Timeout)); err != nil {
			netConn.Close()
			return nil, err
		}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	// the timeout covers connection setup only
	if err := netConn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, err
	}

	return &clientConn{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func (c *clientConn) Run(cmd string) ([]byte, int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, 0, err
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	err = session.Run(cmd)

	var exitMissing *ssh.ExitMissingError
	var exitErr *ssh.ExitError

	switch {
	case err == nil:
		return stdout.Bytes(), 0, nil
	case errors.As(err, &exitMissing):
		// many network operating systems close the channel without an exit status
		return stdout.Bytes(), 0, nil
	case errors.As(err, &exitErr):
		return stdout.Bytes(), exitErr.ExitStatus(), nil
	default:
		return stdout.Bytes(), 0, err
	}
}

func (c *clientConn) Close() error {
	return c.client.Close()
}
