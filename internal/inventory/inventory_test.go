package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []*model.Device
		wantErr error
	}{
		{
			name: "ordered records",
			data: `
devices:
  - hostname: router1
    ip: 10.0.0.1
    type: core
  - hostname: switch1
    location: dc1
`,
			want: []*model.Device{
				{Hostname: "router1", IP: "10.0.0.1", Type: "core"},
				{Hostname: "switch1", Location: "dc1"},
			},
		},
		{
			name: "missing devices key",
			data: "other: true\n",
			want: []*model.Device{},
		},
		{
			name: "empty document",
			data: "",
			want: []*model.Device{},
		},
		{
			name:    "missing hostname",
			data:    "devices:\n  - ip: 10.0.0.1\n",
			wantErr: model.ErrValidation,
		},
		{
			name:    "null entry",
			data:    "devices:\n  -\n",
			wantErr: model.ErrValidation,
		},
		{
			name:    "entry is not a mapping",
			data:    "devices:\n  - router1\n",
			wantErr: model.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - hostname: router1\n"), 0o600))

	devices, err := Load(path)
	require.NoError(t, err)

	if assert.Len(t, devices, 1) {
		assert.Equal(t, "router1", devices[0].Hostname)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, model.ErrConfig), "got %v", err)
}
