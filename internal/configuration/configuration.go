package configuration

import (
	"os"
	"strings"

	"github.com/jeremywohl/flatten"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "settings.yaml"

	defaultEnv        = "dev"
	defaultOutputDir  = "configs"
	defaultSSHTimeout = 10
	defaultSSHCommand = "show running-config"
	defaultSSHPort    = 22
)

// SSHConfig holds the parameters used for every device session.
type SSHConfig struct {
	// Timeout is the per-connection timeout in seconds.
	Timeout int `mapstructure:"timeout"`

	// Command is the single command run on each device.
	Command string `mapstructure:"command"`

	Port int `mapstructure:"port"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the run metrics in the node_exporter textfile format.
	Textfile string `mapstructure:"textfile"`
}

// Configuration holds application configuration read from a YAML or set by env variables.
// nolint:govet // prefer readability over field alignment optimization for this case.
type Configuration struct {
	// Env is the runtime environment, e.g. dev or prod.
	Env string `mapstructure:"env"`

	// OutputDir is where collected .cfg files are written.
	OutputDir string `mapstructure:"output_dir"`

	SSH SSHConfig `mapstructure:"ssh"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// New creates a configuration struct with defaults applied.
func New() *Configuration {
	return &Configuration{
		Env:       defaultEnv,
		OutputDir: defaultOutputDir,
		SSH: SSHConfig{
			Timeout: defaultSSHTimeout,
			Command: defaultSSHCommand,
			Port:    defaultSSHPort,
		},
	}
}

func (c *Configuration) AsLogFields() map[string]any {
	return map[string]any{
		"env":             c.Env,
		"outputDir":       c.OutputDir,
		"sshTimeout":      c.SSH.Timeout,
		"sshCommand":      c.SSH.Command,
		"sshPort":         c.SSH.Port,
		"metricsTextfile": c.Metrics.Textfile,
	}
}

// Load the application configuration
// Reads in the configFile and overrides from environment variables.
func Load(configFile string) (*Configuration, error) {
	if configFile == "" {
		configFile = DefaultConfigFile
	}

	viperConfig := viper.New()
	viperConfig.SetConfigType("yaml")
	viperConfig.SetEnvPrefix(model.AppName)
	viperConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperConfig.AutomaticEnv()

	fh, err := os.Open(configFile)
	if err != nil {
		return nil, errors.Wrap(model.ErrConfig, err.Error())
	}
	defer fh.Close()

	if err = viperConfig.ReadConfig(fh); err != nil {
		return nil, errors.Wrap(model.ErrValidation, "ReadConfig error: "+err.Error())
	}

	// the ssh block carries no required keys, but must be present
	if !viperConfig.InConfig("ssh") {
		return nil, errors.Wrap(model.ErrValidation, "missing parameter: ssh")
	}

	config := New()

	if err := config.envBindVars(viperConfig); err != nil {
		return nil, errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
	}

	if err := viperConfig.Unmarshal(config); err != nil {
		return nil, errors.Wrap(model.ErrValidation, "Unmarshal error: "+err.Error())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded values.
func (c *Configuration) Validate() error {
	if c == nil {
		return model.ErrConfig
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.Wrap(model.ErrValidation, "output_dir is empty")
	}

	if c.SSH.Timeout <= 0 {
		return errors.Wrapf(model.ErrValidation, "ssh.timeout must be positive, got %d", c.SSH.Timeout)
	}

	if strings.TrimSpace(c.SSH.Command) == "" {
		return errors.Wrap(model.ErrValidation, "ssh.command is empty")
	}

	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return errors.Wrapf(model.ErrValidation, "ssh.port out of range: %d", c.SSH.Port)
	}

	return nil
}

// envBindVars binds environment variables to the struct
// without a configuration file being unmarshalled,
// this is a workaround for a viper bug,
//
// This can be replaced by the solution in https://github.com/spf13/viper/pull/1429
// once that PR is merged.
func (c *Configuration) envBindVars(viperConfig *viper.Viper) error {
	envKeysMap := map[string]interface{}{}
	if err := mapstructure.Decode(c, &envKeysMap); err != nil {
		return err
	}

	// Flatten nested conf map
	flat, err := flatten.Flatten(envKeysMap, "", flatten.DotStyle)
	if err != nil {
		return errors.Wrap(err, "Unable to flatten configuration")
	}

	for k := range flat {
		if err := viperConfig.BindEnv(k); err != nil {
			return errors.Wrap(model.ErrConfig, "env var bind error: "+err.Error())
		}
	}

	return nil
}
