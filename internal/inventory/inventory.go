// Package inventory loads the list of devices to collect from.
package inventory

import (
	"os"
	"strings"

	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type document struct {
	Devices []*model.Device `yaml:"devices"`
}

// Load reads a YAML device list with a top-level `devices` key.
//
// A file without the key yields an empty list.
func Load(path string) ([]*model.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(model.ErrConfig, "device list: "+err.Error())
	}

	return Parse(data)
}

// Parse decodes and validates a device list document.
func Parse(data []byte) ([]*model.Device, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(model.ErrValidation, "device list: "+err.Error())
	}

	devices := make([]*model.Device, 0, len(doc.Devices))

	for i, device := range doc.Devices {
		if err := Validate(device); err != nil {
			return nil, errors.Wrapf(err, "device list entry %d", i)
		}

		devices = append(devices, device)
	}

	return devices, nil
}

// Validate checks the required fields of a device record.
func Validate(device *model.Device) error {
	if device == nil {
		return errors.Wrap(model.ErrValidation, "empty entry")
	}

	if strings.TrimSpace(device.Hostname) == "" {
		return errors.Wrap(model.ErrValidation, "missing hostname")
	}

	return nil
}
