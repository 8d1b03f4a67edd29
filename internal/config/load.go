package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Environment variables that take precedence over the config file.
const (
	EnvListenAddress = "BOLTD_LISTEN_ADDRESS"
	EnvAdminAddress  = "BOLTD_ADMIN_ADDRESS"
	EnvLogLevel      = "BOLTD_LOG_LEVEL"
)

// Loaded is a resolved configuration with the file it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// Overrides lists the environment variables applied over the file.
	Overrides []string
}

// Load resolves, reads, parses, and validates the runtime configuration.
// A missing file yields defaults and a warning.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, exists, err := readConfig(path)
	if err != nil {
		return Loaded{}, err
	}
	cfg, _, err := Parse(content, Default())
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "parse config %q", path)
	}

	overrides := applyEnv(&cfg)
	warnings, err := Validate(cfg)
	if err != nil {
		if len(overrides) > 0 {
			return Loaded{}, errors.Wrapf(err, "config %q with %s", path, strings.Join(overrides, ", "))
		}
		return Loaded{}, errors.Wrapf(err, "config %q", path)
	}
	if !exists {
		warnings = append([]Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		}}, warnings...)
	}

	return Loaded{
		Path:      path,
		Config:    cfg,
		Warnings:  warnings,
		Exists:    exists,
		Overrides: overrides,
	}, nil
}

func readConfig(path string) (string, bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrapf(err, "stat config %q", path)
	case info.IsDir():
		return "", false, errors.Newf("config path %q is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", false, errors.Wrapf(err, "read config %q", path)
	}
	return string(content), true, nil
}

func applyEnv(cfg *Config) []string {
	var applied []string
	set := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
			applied = append(applied, name)
		}
	}
	set(EnvListenAddress, &cfg.Listen.Address)
	set(EnvAdminAddress, &cfg.Admin.Address)
	set(EnvLogLevel, &cfg.Log.Level)
	return applied
}
