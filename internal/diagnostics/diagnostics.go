// Package diagnostics runs pre-flight checks of the environment, configuration and devices.
package diagnostics

import (
	"context"
	"net"
	"strings"

	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/credentials"
	"github.com/metal-toolbox/cfgcollector/internal/inventory"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/sirupsen/logrus"
)

// Runner executes every check in order, continuing past failures.
type Runner struct {
	logger *logrus.Entry
	checks []Check
}

type options struct {
	credentials credentials.Source
	loadConfig  func() (*configuration.Configuration, error)
	loadDevices func(path string) ([]*model.Device, error)
	resolver    Resolver
}

type Option func(*options)

func WithCredentials(source credentials.Source) Option {
	return func(o *options) {
		o.credentials = source
	}
}

func WithConfigLoader(load func() (*configuration.Configuration, error)) Option {
	return func(o *options) {
		o.loadConfig = load
	}
}

func WithDeviceLoader(load func(path string) ([]*model.Device, error)) Option {
	return func(o *options) {
		o.loadDevices = load
	}
}

func WithResolver(resolver Resolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// New returns a Runner that loads the configuration from configFile.
func New(configFile string, logger *logrus.Entry, opts ...Option) *Runner {
	o := &options{
		credentials: credentials.FromEnv,
		loadConfig: func() (*configuration.Configuration, error) {
			return configuration.Load(configFile)
		},
		loadDevices: inventory.Load,
		resolver:    net.DefaultResolver,
	}

	for _, opt := range opts {
		opt(o)
	}

	return &Runner{
		logger: logger,
		checks: []Check{
			&credentialsCheck{source: o.credentials},
			&configurationCheck{load: o.loadConfig},
			&deviceListCheck{load: o.loadDevices},
			&outputDirCheck{},
			&resolutionCheck{resolver: o.resolver},
		},
	}
}

// Diagnose runs all checks against devicesFile. Check failures are recorded in the report,
// a check whose requirements did not pass is recorded as blocked.
func (r *Runner) Diagnose(ctx context.Context, devicesFile string) *Report {
	r.logger.Info("=== Running Diagnostics ===")

	report := &Report{}
	data := &sharedData{devicesFile: devicesFile}
	succeeded := map[string]bool{}

	for _, check := range r.checks {
		var results []*Result

		if missing := unmet(check.Requires(), succeeded); len(missing) > 0 {
			results = []*Result{{
				Name:   check.Name(),
				Status: StatusBlocked,
				Detail: "blocked by " + strings.Join(missing, ", "),
				Fatal:  check.Fatal(),
			}}
		} else {
			results = check.Run(ctx, data)
		}

		ok := true
		for _, result := range results {
			r.logResult(result)

			if result.Fatal && !result.Passed() {
				ok = false
			}
		}

		succeeded[check.Name()] = ok && !isBlocked(results)
		report.add(results...)
	}

	r.logger.WithFields(logrus.Fields{
		"passed":  report.Counts()[StatusPassed],
		"failed":  report.Counts()[StatusFailed],
		"blocked": report.Counts()[StatusBlocked],
		"warning": report.Counts()[StatusWarning],
	}).Info("=== Diagnostics Complete ===")

	return report
}

func (r *Runner) logResult(result *Result) {
	entry := r.logger.WithFields(result.AsLogFields())

	switch result.Status {
	case StatusPassed:
		entry.Infof("%s: %s", result.Name, result.Detail)
	case StatusWarning:
		entry.Warnf("%s: %s", result.Name, result.Detail)
	default:
		entry.Errorf("%s check %s: %s", result.Name, result.Status, result.Detail)
	}
}

func unmet(requires []string, succeeded map[string]bool) []string {
	var missing []string

	for _, name := range requires {
		if !succeeded[name] {
			missing = append(missing, name)
		}
	}

	return missing
}

func isBlocked(results []*Result) bool {
	for _, result := range results {
		if result.Status == StatusBlocked {
			return true
		}
	}

	return false
}
