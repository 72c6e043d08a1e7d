package diagnostics

import (
	"context"
	"fmt"
	"os"

	"github.com/metal-toolbox/cfgcollector/internal/configuration"
	"github.com/metal-toolbox/cfgcollector/internal/credentials"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
)

const (
	CheckCredentials   = "credentials"
	CheckConfiguration = "configuration"
	CheckDeviceList    = "device_list"
	CheckOutputDir     = "output_dir"
	CheckResolution    = "dns"

	probeFilePattern = ".write_test*"
)

// sharedData carries what earlier checks loaded to the checks depending on them.
type sharedData struct {
	devicesFile string
	config      *configuration.Configuration
	devices     []*model.Device
}

// Check is one independent diagnostic.
type Check interface {
	// Name of this check
	Name() string
	// Requires lists the checks that must pass before this one can run
	Requires() []string
	// Fatal checks that fail or are blocked make the diagnostic fail
	Fatal() bool
	// Run executes the check and returns its results, usually exactly one
	Run(ctx context.Context, data *sharedData) []*Result
}

func passed(name, detail string) []*Result {
	return []*Result{{Name: name, Status: StatusPassed, Detail: detail, Fatal: true}}
}

func failed(name string, err error) []*Result {
	return []*Result{{Name: name, Status: StatusFailed, Detail: err.Error(), Fatal: true}}
}

type credentialsCheck struct {
	source credentials.Source
}

func (c *credentialsCheck) Name() string       { return CheckCredentials }
func (c *credentialsCheck) Fatal() bool        { return true }
func (c *credentialsCheck) Requires() []string { return nil }

func (c *credentialsCheck) Run(_ context.Context, _ *sharedData) []*Result {
	creds, err := c.source()
	if err != nil {
		return failed(c.Name(), err)
	}

	return passed(c.Name(), "SSH_USERNAME: "+creds.Username)
}

type configurationCheck struct {
	load func() (*configuration.Configuration, error)
}

func (c *configurationCheck) Name() string       { return CheckConfiguration }
func (c *configurationCheck) Fatal() bool        { return true }
func (c *configurationCheck) Requires() []string { return nil }

func (c *configurationCheck) Run(_ context.Context, data *sharedData) []*Result {
	config, err := c.load()
	if err != nil {
		return failed(c.Name(), err)
	}

	data.config = config

	return passed(c.Name(), "output dir: "+config.OutputDir)
}

type deviceListCheck struct {
	load func(path string) ([]*model.Device, error)
}

func (c *deviceListCheck) Name() string       { return CheckDeviceList }
func (c *deviceListCheck) Fatal() bool        { return true }
func (c *deviceListCheck) Requires() []string { return []string{CheckConfiguration} }

func (c *deviceListCheck) Run(_ context.Context, data *sharedData) []*Result {
	devices, err := c.load(data.devicesFile)
	if err != nil {
		return failed(c.Name(), err)
	}

	data.devices = devices

	return passed(c.Name(), fmt.Sprintf("loaded %d device(s) from %s", len(devices), data.devicesFile))
}

type outputDirCheck struct{}

func (c *outputDirCheck) Name() string       { return CheckOutputDir }
func (c *outputDirCheck) Fatal() bool        { return true }
func (c *outputDirCheck) Requires() []string { return []string{CheckConfiguration} }

func (c *outputDirCheck) Run(_ context.Context, data *sharedData) []*Result {
	dir := data.config.OutputDir

	if err := probeWritable(dir); err != nil {
		return failed(c.Name(), err)
	}

	return passed(c.Name(), "writable: "+dir)
}

// probeWritable creates dir if needed, then creates and removes a file in it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(model.ErrIO, err.Error())
	}

	probe, err := os.CreateTemp(dir, probeFilePattern)
	if err != nil {
		return errors.Wrap(model.ErrIO, err.Error())
	}

	_, werr := probe.WriteString("test")
	cerr := probe.Close()
	rerr := os.Remove(probe.Name())

	for _, err := range []error{werr, cerr, rerr} {
		if err != nil {
			return errors.Wrap(model.ErrIO, err.Error())
		}
	}

	return nil
}

// Resolver is the subset of net.Resolver used for the name resolution check.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// resolutionCheck reports every device on its own, failures are warnings only.
type resolutionCheck struct {
	resolver Resolver
}

func (c *resolutionCheck) Name() string       { return CheckResolution }
func (c *resolutionCheck) Fatal() bool        { return false }
func (c *resolutionCheck) Requires() []string { return []string{CheckDeviceList} }

func (c *resolutionCheck) Run(ctx context.Context, data *sharedData) []*Result {
	results := make([]*Result, 0, len(data.devices))

	for _, device := range data.devices {
		name := CheckResolution + ":" + device.Hostname

		addrs, err := c.resolver.LookupHost(ctx, device.Hostname)
		if err != nil {
			results = append(results, &Result{
				Name:   name,
				Status: StatusWarning,
				Detail: "DNS resolution failed: " + err.Error(),
			})

			continue
		}

		results = append(results, &Result{
			Name:   name,
			Status: StatusPassed,
			Detail: fmt.Sprintf("resolves to %v", addrs),
		})
	}

	return results
}
