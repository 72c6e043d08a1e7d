// Package sshdevice fetches the running configuration of network devices over SSH.
package sshdevice

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/credentials"
	"github.com/metal-toolbox/cfgcollector/internal/metrics"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/metal-toolbox/cfgcollector/internal/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/ssh"
)

var (
	pkgName = "internal/store/sshdevice"
)

// Client runs the configured command on devices, one connection per attempt.
type Client struct {
	cfg         configuration.SSHConfig
	logger      *logrus.Entry
	credentials credentials.Source
	dial        DialFunc
	policy      *retry.Policy
	metrics     *metrics.Recorder
}

type Option func(*Client)

func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

func WithCredentials(source credentials.Source) Option {
	return func(c *Client) {
		c.credentials = source
	}
}

// WithRetryPolicy replaces the default policy. The client keeps its own copy, with Retryable
// set to Transient when left nil.
func WithRetryPolicy(policy *retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

// New returns a Client reading credentials from the environment.
func New(cfg configuration.SSHConfig, logger *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg,
		logger:      logger,
		credentials: credentials.FromEnv,
		dial:        Dial,
		policy:      retry.DefaultPolicy(Transient),
	}

	for _, opt := range opts {
		opt(c)
	}

	policy := *c.policy
	if policy.Retryable == nil {
		policy.Retryable = Transient
	}

	c.policy = &policy

	return c
}

// Transient reports whether err is worth another connection attempt.
func Transient(err error) bool {
	return errors.Is(err, model.ErrConnection)
}

// FetchRunningConfig returns the output of the configured command on hostname.
//
// Missing credentials fail before any connection is made. Connection failures are retried per
// the client's policy, the last one is returned once attempts run out.
func (c *Client) FetchRunningConfig(ctx context.Context, hostname string) (string, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"sshdevice.FetchRunningConfig",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("hostname", hostname)),
	)
	defer span.End()

	creds, err := c.credentials()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	config := c.clientConfig(creds)
	addr := net.JoinHostPort(hostname, strconv.Itoa(c.cfg.Port))
	logger := c.logger.WithField("hostname", hostname)

	policy := *c.policy
	policy.Notify = func(err error, attempt int, wait time.Duration) {
		c.metrics.FetchAttempt(metrics.AttemptRetry)
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("fetch attempt failed, retrying")
	}

	started := time.Now()
	defer c.metrics.ObserveFetch(started)

	var output []byte

	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
		logger.WithField("attempt", attempt).Debug("connecting")

		out, err := c.attempt(ctx, hostname, addr, config)
		if err != nil {
			return err
		}

		output = out

		return nil
	})
	if err != nil {
		c.metrics.FetchAttempt(metrics.AttemptError)
		span.SetStatus(codes.Error, err.Error())

		return "", err
	}

	c.metrics.FetchAttempt(metrics.AttemptSuccess)
	logger.WithField("bytes", len(output)).Debug("command output received")

	return string(output), nil
}

// attempt is a single connect, run, close cycle. The connection is closed on every path.
func (c *Client) attempt(ctx context.Context, hostname, addr string, config *ssh.ClientConfig) ([]byte, error) {
	conn, err := c.dial(ctx, addr, config)
	if err != nil {
		return nil, &model.ConnectionError{Host: hostname, Op: "dial", Err: err}
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			c.logger.WithError(cerr).WithField("hostname", hostname).Debug("connection close error")
		}
	}()

	out, exitStatus, err := conn.Run(c.cfg.Command)
	if err != nil {
		return nil, &model.ConnectionError{Host: hostname, Op: "exec", Err: err}
	}

	if exitStatus != 0 {
		c.logger.WithFields(logrus.Fields{
			"hostname":   hostname,
			"command":    c.cfg.Command,
			"exitStatus": exitStatus,
		}).Warn("command exited with non-zero status, keeping its output")
	}

	return out, nil
}

func (c *Client) clientConfig(creds credentials.Credentials) *ssh.ClientConfig {
	password := creds.Password

	// devices that only offer keyboard-interactive expect the password at every prompt
	challenge := func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}

		return answers, nil
	}

	return &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(challenge),
		},
		// host keys are accepted on first use
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nolint:gosec // trust on first use
		Timeout:         time.Duration(c.cfg.Timeout) * time.Second,
	}
}
