package log

import (
	"io"
	"os"
	"path/filepath"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/metal-toolbox/cfgcollector/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	DefaultFile       = "logs/" + model.AppName + ".log"
	DefaultMaxSizeMB  = 1
	DefaultMaxBackups = 5
)

// Options configures the two log destinations.
type Options struct {
	// ConsoleLevel applies to the console, the file always records debug and above.
	ConsoleLevel string
	Console      io.Writer

	// File is the rotated log file, empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultOptions logs info to stderr and debug to the rotated default file.
func DefaultOptions() Options {
	return Options{
		ConsoleLevel: string(LevelInfo),
		Console:      os.Stderr,
		File:         DefaultFile,
		MaxSizeMB:    DefaultMaxSizeMB,
		MaxBackups:   DefaultMaxBackups,
	}
}

// ParseLevel maps a level name to a logrus level, unknown or empty names map to info.
func ParseLevel(logLevel string) (logrus.Level, bool) {
	switch Level(logLevel) {
	case LevelTrace:
		return logrus.TraceLevel, true
	case LevelDebug:
		return logrus.DebugLevel, true
	case LevelInfo, "":
		return logrus.InfoLevel, true
	case LevelWarn:
		return logrus.WarnLevel, true
	case LevelError:
		return logrus.ErrorLevel, true
	default:
		return logrus.InfoLevel, false
	}
}

// NewLogger returns a logger writing to the rotated file, with entries at or above the console
// level mirrored to the console. The returned closer releases the file.
func NewLogger(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(newFormatter())

	consoleLevel, known := ParseLevel(opts.ConsoleLevel)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var closer io.Closer = nopCloser{}

	if opts.File == "" {
		logger.SetOutput(console)
		logger.SetLevel(consoleLevel)
	} else {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, errors.Wrap(model.ErrIO, "log directory: "+err.Error())
		}

		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}

		// the file gets everything from debug up, the hook filters for the console
		logger.SetOutput(file)
		logger.SetLevel(maxLevel(consoleLevel, logrus.DebugLevel))
		logger.AddHook(&writerHook{writer: console, levels: levelsUpTo(consoleLevel)})

		closer = file
	}

	if !known {
		logger.WithField("logLevel", opts.ConsoleLevel).Warn("Unknown log level, defaulting to info")
	}

	return logger, closer, nil
}

func newFormatter() logrus.Formatter {
	return &runtime.Formatter{
		ChildFormatter: &logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		},
		File:         true,
		Line:         true,
		BaseNameOnly: true,
	}
}

// writerHook writes formatted entries of the given levels to writer.
type writerHook struct {
	writer io.Writer
	levels []logrus.Level
}

func (h *writerHook) Levels() []logrus.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}

	_, err = h.writer.Write(line)

	return err
}

func levelsUpTo(level logrus.Level) []logrus.Level {
	var levels []logrus.Level

	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}

	return levels
}

func maxLevel(a, b logrus.Level) logrus.Level {
	if a > b {
		return a
	}

	return b
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
