package sshdevice

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// mockDevice is an in-process SSH server answering exec requests from a fixed table.
type mockDevice struct {
	username  string
	password  string
	responses map[string]string

	// exitStatus is sent after the response unless omitExitStatus is set.
	exitStatus     uint32
	omitExitStatus bool

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	commands []string
}

func startMockDevice(t *testing.T, m *mockDevice) *mockDevice {
	t.Helper()

	_, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := ssh.NewSignerFromKey(private)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == m.username && string(pass) == m.password {
				return nil, nil
			}

			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	m.listener, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		m.acceptUntilError(config)
	}()

	t.Cleanup(func() {
		m.listener.Close()
		m.wg.Wait()
	})

	return m
}

func (m *mockDevice) port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *mockDevice) host() string {
	return m.listener.Addr().(*net.TCPAddr).IP.String()
}

func (m *mockDevice) addr() string {
	return net.JoinHostPort(m.host(), strconv.Itoa(m.port()))
}

func (m *mockDevice) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.commands...)
}

func (m *mockDevice) acceptUntilError(config *ssh.ServerConfig) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}

		m.wg.Add(1)

		go func() {
			defer m.wg.Done()
			defer conn.Close()

			sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
			if err != nil {
				return
			}
			defer sconn.Close()

			go ssh.DiscardRequests(reqs)

			for newCh := range chans {
				m.handleChannel(newCh)
			}
		}()
	}
}

func (m *mockDevice) handleChannel(newCh ssh.NewChannel) {
	if t := newCh.ChannelType(); t != "session" {
		_ = newCh.Reject(ssh.UnknownChannelType, "unknown channel type: "+t)
		return
	}

	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}

		_ = req.Reply(true, nil)

		m.mu.Lock()
		m.commands = append(m.commands, payload.Command)
		m.mu.Unlock()

		_, _ = ch.Write([]byte(m.responses[payload.Command]))

		if !m.omitExitStatus {
			status := struct{ Status uint32 }{m.exitStatus}
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
		}

		return
	}
}
