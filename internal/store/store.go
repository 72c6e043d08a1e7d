package store

import (
	"context"

	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/metrics"
	"github.com/metal-toolbox/cfgcollector/internal/store/cfgfile"
	"github.com/metal-toolbox/cfgcollector/internal/store/sshdevice"
	"github.com/sirupsen/logrus"
)

// Fetcher retrieves the running configuration of a device.
type Fetcher interface {
	FetchRunningConfig(ctx context.Context, hostname string) (string, error)
}

// Writer persists a fetched configuration and returns where it was written.
type Writer interface {
	WriteConfig(hostname, data, dateStamp, outputDir string) (string, error)
}

// NewFetcher returns the SSH fetcher for the given configuration.
func NewFetcher(config *configuration.Configuration, logger *logrus.Entry, recorder *metrics.Recorder) Fetcher {
	return sshdevice.New(
		config.SSH,
		logger.WithField("component", "sshdevice"),
		sshdevice.WithMetrics(recorder),
	)
}

func NewWriter() Writer {
	return cfgfile.NewWriter()
}
