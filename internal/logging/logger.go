// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Options controls how New builds the logger.
type Options struct {
	Level string
	// Console mirrors entries in human-readable form when set.
	Console io.Writer
	Service string
	Version string
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger zerolog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger rooted at the resolved state path.
func New(opts Options) (Runtime, error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return Runtime{}, errors.Wrapf(err, "log level %q", opts.Level)
		}
		level = parsed
	}

	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, errors.Wrap(err, "create log directory")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, errors.Wrap(err, "open log file")
	}

	var out io.Writer = f
	if opts.Console != nil {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.Kitchen})
	}

	service := opts.Service
	if service == "" {
		service = "boltd"
	}
	logger := zerolog.New(out).Level(level).With().
		Timestamp().
		Str(FieldService, service).
		Str(FieldVersion, opts.Version).
		Logger()
	return Runtime{Logger: logger, Path: path, closer: f}, nil
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str(FieldComponent, component).Logger()
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "boltd", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home for log path")
	}
	return filepath.Join(home, ".local", "state", "boltd", "log.jsonl"), nil
}
