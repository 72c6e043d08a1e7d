// Package collector runs one configuration collection pass over a device list.
package collector

import (
	"context"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"
	"github.com/metal-toolbox/cfgcollector/internal/metrics"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/metal-toolbox/cfgcollector/internal/store"
	"github.com/metal-toolbox/cfgcollector/internal/store/cfgfile"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	pkgName = "internal/collector"
)

// Collector fetches and stores device configurations, one device at a time.
type Collector struct {
	fetcher store.Fetcher
	writer  store.Writer
	logger  *logrus.Entry
	metrics *metrics.Recorder
	now     func() time.Time
}

type Option func(*Collector)

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Collector) {
		c.metrics = recorder
	}
}

// WithClock overrides the time source used for the run date stamp.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

func New(fetcher store.Fetcher, writer store.Writer, logger *logrus.Entry, opts ...Option) *Collector {
	c := &Collector{
		fetcher: fetcher,
		writer:  writer,
		logger:  logger,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collect processes devices in order. Per device errors are logged and counted, never returned.
//
// In dry-run mode the intended actions are logged and every device is counted as skipped,
// neither the fetcher nor the writer is called.
func (c *Collector) Collect(ctx context.Context, devices []*model.Device, outputDir string, dryRun bool) *model.RunSummary {
	startedAt := c.now().UTC()

	summary := &model.RunSummary{
		RunID:     uuid.New().String(),
		DateStamp: model.DateStamp(startedAt),
		StartedAt: startedAt,
		Total:     len(devices),
	}

	logger := c.logger.WithField("runID", summary.RunID)
	c.logJobMetadata(logger, summary, dryRun)

	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"collector.Collect",
		trace.WithAttributes(
			attribute.String("runID", summary.RunID),
			attribute.Int("devices", len(devices)),
			attribute.Bool("dryRun", dryRun),
		),
	)
	defer span.End()

	for _, device := range devices {
		deviceLogger := logger.WithFields(device.AsLogFields())

		if dryRun {
			c.skip(deviceLogger, device, summary, outputDir)
			continue
		}

		if err := c.collectDevice(ctx, deviceLogger, device, summary.DateStamp, outputDir); err != nil {
			deviceLogger.WithError(err).Error("failed to collect config")
			summary.Failure++
			c.metrics.DeviceResult(metrics.ResultFailure)

			continue
		}

		summary.Success++
		c.metrics.DeviceResult(metrics.ResultSuccess)
	}

	c.metrics.RunFinished(c.now())
	c.logSummary(logger, summary)

	return summary
}

func (c *Collector) skip(logger *logrus.Entry, device *model.Device, summary *model.RunSummary, outputDir string) {
	ip := device.IP
	if ip == "" {
		ip = "no IP"
	}

	logger.Infof("[DRY-RUN] Would connect to %s (%s)", device.Hostname, ip)
	logger.Infof("[DRY-RUN] Would write config to %s", cfgfile.Path(outputDir, device.Hostname, summary.DateStamp))

	summary.Skipped++
	c.metrics.DeviceResult(metrics.ResultSkipped)
}

// collectDevice writes the file only after a complete fetch.
func (c *Collector) collectDevice(ctx context.Context, logger *logrus.Entry, device *model.Device, dateStamp, outputDir string) error {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"collector.collectDevice",
		trace.WithAttributes(attribute.String("hostname", device.Hostname)),
	)
	defer span.End()

	logger.Infof("Connecting to %s", device.Hostname)

	config, err := c.fetcher.FetchRunningConfig(ctx, device.Hostname)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	path, err := c.writer.WriteConfig(device.Hostname, config, dateStamp, outputDir)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.WithField("path", path).Infof("Config saved for %s", device.Hostname)

	return nil
}

func (c *Collector) logJobMetadata(logger *logrus.Entry, summary *model.RunSummary, dryRun bool) {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	logger.WithFields(logrus.Fields{
		"user":      username,
		"host":      host,
		"timestamp": summary.StartedAt.Format(time.RFC3339),
		"dateStamp": summary.DateStamp,
		"devices":   summary.Total,
		"dryRun":    dryRun,
	}).Info("=== Job Metadata ===")
}

func (c *Collector) logSummary(logger *logrus.Entry, summary *model.RunSummary) {
	logger.WithFields(summary.AsLogFields()).Info("=== SSH Collection Summary ===")
	logger.Infof("Total devices: %d", summary.Total)
	logger.Infof("Successes:     %d", summary.Success)
	logger.Infof("Failures:      %d", summary.Failure)
	logger.Infof("Dry-run/skips: %d", summary.Skipped)
}
