package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// EnvConfigPath names a config file when --config is not given.
const EnvConfigPath = "BOLTD_CONFIG"

const (
	configDir  = "boltd"
	configFile = "config.yaml"
)

// ResolvePath picks the config file: the --config flag, then $BOLTD_CONFIG,
// then $XDG_CONFIG_HOME/boltd/config.yaml, then ~/.config/boltd/config.yaml.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if path := strings.TrimSpace(candidate); path != "" {
			return path, nil
		}
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, configDir, configFile), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory for config")
	}
	return filepath.Join(home, ".config", configDir, configFile), nil
}
