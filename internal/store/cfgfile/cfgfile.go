// Package cfgfile persists collected configurations as dated files.
package cfgfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Writer writes configs to <outputDir>/<hostname>_<dateStamp>.cfg.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Path returns where the config of hostname for dateStamp is written.
func Path(outputDir, hostname, dateStamp string) string {
	return filepath.Join(outputDir, model.ConfigFileName(hostname, dateStamp))
}

// WriteConfig stores data verbatim, creating outputDir as needed.
// The file is replaced atomically, an existing file for the same day is overwritten.
func (w *Writer) WriteConfig(hostname, data, dateStamp, outputDir string) (string, error) {
	if hostname == "" || strings.ContainsAny(hostname, `/\`) || hostname == "." || hostname == ".." {
		return "", errors.Wrapf(model.ErrIO, "hostname %q is not usable as a file name", hostname)
	}

	if err := os.MkdirAll(outputDir, dirMode); err != nil {
		return "", errors.Wrap(model.ErrIO, err.Error())
	}

	path := Path(outputDir, hostname, dateStamp)

	// synced to disk before the rename, the temporary file is removed on failure
	if err := renameio.WriteFile(path, []byte(data), fileMode); err != nil {
		return "", errors.Wrap(model.ErrIO, err.Error())
	}

	return path, nil
}
