// Package credentials resolves the SSH login used for every device.
package credentials

import (
	"io/fs"
	"os"

	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

const (
	UsernameEnv = "SSH_USERNAME"
	PasswordEnv = "SSH_PASSWORD"

	DefaultDotEnvFile = ".env"
)

// Credentials is a username/password pair. Never log the password.
type Credentials struct {
	Username string
	Password string
}

// String keeps the password out of formatted output.
func (c Credentials) String() string {
	return c.Username + ":<redacted>"
}

// Source resolves credentials, returning model.ErrConfig when they are unavailable.
type Source func() (Credentials, error)

// FromEnv reads SSH_USERNAME and SSH_PASSWORD from the process environment.
func FromEnv() (Credentials, error) {
	username, err := Lookup(UsernameEnv, true)
	if err != nil {
		return Credentials{}, err
	}

	password, err := Lookup(PasswordEnv, true)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{Username: username, Password: password}, nil
}

// Lookup returns the value of an environment variable.
// When required, an unset or empty value is a configuration error.
func Lookup(name string, required bool) (string, error) {
	value := os.Getenv(name)

	if required && value == "" {
		return "", errors.Wrap(model.ErrConfig, "missing required environment variable: "+name)
	}

	return value, nil
}

// LoadDotEnv loads variables from a dotenv file without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DefaultDotEnvFile
	}

	err := gotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(model.ErrConfig, "dotenv: "+err.Error())
	}

	return nil
}
