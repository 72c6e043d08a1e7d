package sshdevice

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/credentials"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/metal-toolbox/cfgcollector/internal/retry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type recordingTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.waits = append(r.waits, d)
	r.c = make(chan time.Time, 1)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time {
	return r.c
}

type fakeConn struct {
	output     string
	exitStatus int
	runErr     error
	runs       int
	closes     int
}

func (f *fakeConn) Run(_ string) ([]byte, int, error) {
	f.runs++
	if f.runErr != nil {
		return nil, 0, f.runErr
	}

	return []byte(f.output), f.exitStatus, nil
}

func (f *fakeConn) Close() error {
	f.closes++
	return nil
}

// fakeDevice hands out one scripted outcome per dial.
type fakeDevice struct {
	dialErrs []error
	conns    []*fakeConn
	dials    int
	addrs    []string
	users    []string
}

func (f *fakeDevice) dial(_ context.Context, addr string, config *ssh.ClientConfig) (Conn, error) {
	i := f.dials
	f.dials++
	f.addrs = append(f.addrs, addr)
	f.users = append(f.users, config.User)

	if i < len(f.dialErrs) && f.dialErrs[i] != nil {
		return nil, f.dialErrs[i]
	}

	return f.conns[i], nil
}

func (f *fakeDevice) closes() int {
	n := 0
	for _, c := range f.conns {
		if c != nil {
			n += c.closes
		}
	}

	return n
}

func staticCredentials() (credentials.Credentials, error) {
	return credentials.Credentials{Username: "admin", Password: "secret"}, nil
}

func newTestClient(t *testing.T, device *fakeDevice, timer *recordingTimer) *Client {
	t.Helper()

	logger, _ := test.NewNullLogger()
	policy := retry.DefaultPolicy(nil)
	policy.Timer = timer

	return New(
		configuration.SSHConfig{Timeout: 10, Command: "show running-config", Port: 22},
		logrus.NewEntry(logger),
		WithDialer(device.dial),
		WithCredentials(staticCredentials),
		WithRetryPolicy(policy),
	)
}

func TestFetchRunningConfigSuccess(t *testing.T) {
	device := &fakeDevice{conns: []*fakeConn{{output: "config-output"}}}
	timer := &recordingTimer{}

	got, err := newTestClient(t, device, timer).FetchRunningConfig(context.Background(), "router1")
	require.NoError(t, err)

	assert.Equal(t, "config-output", got)
	assert.Equal(t, 1, device.dials)
	assert.Equal(t, []string{"router1:22"}, device.addrs)
	assert.Equal(t, []string{"admin"}, device.users)
	assert.Equal(t, 1, device.closes())
	assert.Empty(t, timer.waits)
}

func TestFetchRunningConfigRetriesExhausted(t *testing.T) {
	dialErr := errors.New("connection refused")
	device := &fakeDevice{dialErrs: []error{dialErr, dialErr, dialErr}}
	timer := &recordingTimer{}

	_, err := newTestClient(t, device, timer).FetchRunningConfig(context.Background(), "unreachable-device")

	assert.True(t, errors.Is(err, model.ErrConnection))
	assert.True(t, errors.Is(err, dialErr))

	var connErr *model.ConnectionError
	if assert.True(t, errors.As(err, &connErr)) {
		assert.Equal(t, "unreachable-device", connErr.Host)
		assert.Equal(t, "dial", connErr.Op)
	}

	assert.Equal(t, 3, device.dials)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, timer.waits)
}

func TestFetchRunningConfigClosesEveryAttempt(t *testing.T) {
	device := &fakeDevice{conns: []*fakeConn{
		{runErr: io.EOF},
		{runErr: io.EOF},
		{runErr: io.EOF},
	}}

	_, err := newTestClient(t, device, &recordingTimer{}).FetchRunningConfig(context.Background(), "router1")

	assert.True(t, errors.Is(err, model.ErrConnection))
	assert.Equal(t, 3, device.dials)

	for i, conn := range device.conns {
		assert.Equal(t, 1, conn.runs, "attempt %d", i)
		assert.Equal(t, 1, conn.closes, "attempt %d", i)
	}
}

func TestFetchRunningConfigFailOnceThenSucceed(t *testing.T) {
	device := &fakeDevice{conns: []*fakeConn{
		{runErr: io.ErrUnexpectedEOF},
		{output: "conf1"},
	}}
	timer := &recordingTimer{}

	got, err := newTestClient(t, device, timer).FetchRunningConfig(context.Background(), "router1")
	require.NoError(t, err)

	assert.Equal(t, "conf1", got)
	assert.Equal(t, 2, device.dials)
	assert.Equal(t, 2, device.closes())
	assert.Equal(t, []time.Duration{2 * time.Second}, timer.waits)
}

func TestFetchRunningConfigNonZeroExitKeepsOutput(t *testing.T) {
	logger, hook := test.NewNullLogger()
	policy := retry.DefaultPolicy(nil)
	timer := &recordingTimer{}
	policy.Timer = timer

	device := &fakeDevice{conns: []*fakeConn{
		{output: "hostname r1\n!\nend\n", exitStatus: 1},
	}}

	client := New(
		configuration.SSHConfig{Timeout: 10, Command: "show running-config", Port: 22},
		logrus.NewEntry(logger),
		WithDialer(device.dial),
		WithCredentials(staticCredentials),
		WithRetryPolicy(policy),
	)

	got, err := client.FetchRunningConfig(context.Background(), "router1")
	require.NoError(t, err)

	assert.Equal(t, "hostname r1\n!\nend\n", got)
	assert.Equal(t, 1, device.dials)
	assert.Equal(t, 1, device.closes())
	assert.Empty(t, timer.waits)

	var warned bool

	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["exitStatus"] == 1 {
			warned = true

			assert.Equal(t, "router1", entry.Data["hostname"])
		}
	}

	assert.True(t, warned, "non-zero exit status not logged")
}

func TestNewKeepsCallerPolicy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	policy := retry.DefaultPolicy(nil)

	client := New(
		configuration.SSHConfig{Timeout: 10, Command: "show running-config", Port: 22},
		logrus.NewEntry(logger),
		WithRetryPolicy(policy),
	)

	assert.Nil(t, policy.Retryable)
	assert.NotSame(t, policy, client.policy)
	require.NotNil(t, client.policy.Retryable)
	assert.True(t, client.policy.Retryable(&model.ConnectionError{Host: "router1", Op: "dial", Err: io.EOF}))
	assert.False(t, client.policy.Retryable(model.ErrConfig))
}

func TestFetchRunningConfigMissingCredentials(t *testing.T) {
	t.Setenv(credentials.UsernameEnv, "")
	t.Setenv(credentials.PasswordEnv, "secret")

	device := &fakeDevice{}
	logger, _ := test.NewNullLogger()

	client := New(
		configuration.SSHConfig{Timeout: 10, Command: "show running-config", Port: 22},
		logrus.NewEntry(logger),
		WithDialer(device.dial),
	)

	_, err := client.FetchRunningConfig(context.Background(), "router1")

	assert.True(t, errors.Is(err, model.ErrConfig))
	assert.Equal(t, 0, device.dials)
}

func TestFetchRunningConfigLogsRetries(t *testing.T) {
	logger, hook := test.NewNullLogger()
	policy := retry.DefaultPolicy(nil)
	policy.Timer = &recordingTimer{}

	device := &fakeDevice{conns: []*fakeConn{{runErr: io.EOF}, {output: "ok"}}}

	client := New(
		configuration.SSHConfig{Timeout: 10, Command: "show running-config", Port: 22},
		logrus.NewEntry(logger),
		WithDialer(device.dial),
		WithCredentials(staticCredentials),
		WithRetryPolicy(policy),
	)

	_, err := client.FetchRunningConfig(context.Background(), "router1")
	require.NoError(t, err)

	var warned bool

	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true

			assert.Equal(t, "router1", entry.Data["hostname"])
			assert.Equal(t, 1, entry.Data["attempt"])
		}

		assert.NotContains(t, entry.Message, "secret")
	}

	assert.True(t, warned)
}
