package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/metal-toolbox/cfgcollector/internal/collector"
	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/credentials"
	"github.com/metal-toolbox/cfgcollector/internal/diagnostics"
	"github.com/metal-toolbox/cfgcollector/internal/inventory"
	"github.com/metal-toolbox/cfgcollector/internal/log"
	"github.com/metal-toolbox/cfgcollector/internal/metrics"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/metal-toolbox/cfgcollector/internal/profiling"
	"github.com/metal-toolbox/cfgcollector/internal/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errDiagnosticsFailed = errors.New("diagnostics failed")

func run(ctx context.Context, args *model.Args) error {
	return runWithConsole(ctx, args, os.Stderr)
}

func runWithConsole(ctx context.Context, args *model.Args, console io.Writer) error {
	dotEnvErr := credentials.LoadDotEnv(credentials.DefaultDotEnvFile)

	opts := log.DefaultOptions()
	opts.ConsoleLevel = args.LogLevel
	opts.Console = console
	opts.File = args.LogFile

	logger, closer, err := log.NewLogger(opts)
	if err != nil {
		fmt.Fprintln(console, "Failed to initialize logging:", err)
		return err
	}
	defer closer.Close()

	entry := logger.WithField("app", model.AppName)

	if dotEnvErr != nil {
		entry.WithError(dotEnvErr).Warn("Failed to load .env file")
	}

	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)
	defer otelShutdown(ctx)

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(termChan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancel the context when we receive a termination signal.
	go func() {
		select {
		case s := <-termChan:
			entry.WithField("signal", s.String()).Warn("Received signal for termination, stopping collection")
			cancel()
		case <-ctx.Done():
		}
	}()

	if args.Diagnose {
		return runDiagnostics(ctx, args, entry)
	}

	return runCollection(ctx, args, entry)
}

func runDiagnostics(ctx context.Context, args *model.Args, logger *logrus.Entry) error {
	report := diagnostics.New(args.ConfigFile, logger).Diagnose(ctx, args.DevicesFile)
	if report.Failed() {
		return errDiagnosticsFailed
	}

	return nil
}

func runCollection(ctx context.Context, args *model.Args, logger *logrus.Entry) error {
	config, err := configuration.Load(args.ConfigFile)
	if err != nil {
		logger.WithError(err).WithField("config", args.ConfigFile).Error("Failed to load configuration")
		return err
	}

	logger.WithFields(config.AsLogFields()).Info("Configuration loaded")

	devices, err := inventory.Load(args.DevicesFile)
	if err != nil {
		logger.WithError(err).WithField("devicesFile", args.DevicesFile).Error("Failed to load device list")
		return err
	}

	logger.WithField("devices", len(devices)).Debug("Device list loaded")

	recorder := metrics.New()

	if args.EnableProfiling {
		profiling.Enable(ctx, recorder.Gatherer(), logger)
	}

	c := collector.New(
		store.NewFetcher(config, logger, recorder),
		store.NewWriter(),
		logger,
		collector.WithMetrics(recorder),
	)

	c.Collect(ctx, devices, config.OutputDir, args.DryRun)

	if err := recorder.WriteTextfile(config.Metrics.Textfile); err != nil {
		logger.WithError(err).WithField("textfile", config.Metrics.Textfile).Warn("Failed to write metrics textfile")
	}

	return nil
}
