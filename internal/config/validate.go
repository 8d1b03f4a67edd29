package config

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Listen.Network {
	case "unix":
	case "tcp":
		if strings.TrimSpace(cfg.Listen.Address) == "" {
			return nil, errors.New("listen.address must not be empty when listen.network=tcp")
		}
	default:
		return nil, errors.New("listen.network must be one of: unix, tcp")
	}

	switch cfg.Protocol.Version {
	case "4.4", "5.1":
	default:
		return nil, errors.Newf("protocol.version must be one of: 4.4, 5.1 (got %q)", cfg.Protocol.Version)
	}

	if cfg.Auth.CredentialLifetime < 0 {
		return nil, errors.New("auth.credential_lifetime must be >= 0")
	}
	seen := make(map[string]struct{}, len(cfg.Auth.Users))
	for i, u := range cfg.Auth.Users {
		if strings.TrimSpace(u.Name) == "" {
			return nil, errors.Newf("auth.users[%d].name must not be empty", i)
		}
		if _, dup := seen[u.Name]; dup {
			return nil, errors.Newf("auth.users[%d]: duplicate user %q", i, u.Name)
		}
		seen[u.Name] = struct{}{}
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			return nil, errors.Newf("auth.users[%d].password_hash must be a bcrypt hash", i)
		}
	}
	if !cfg.Auth.Enabled {
		warnings = append(warnings, Warning{Message: "auth.enabled=false; every client is accepted"})
	} else if len(cfg.Auth.Users) == 0 {
		warnings = append(warnings, Warning{Message: "auth.enabled=true but no users are configured; every login will fail"})
	}

	if cfg.Admin.Address != "" && cfg.Admin.RatePerMinute <= 0 {
		return nil, errors.New("admin.rate_per_minute must be > 0")
	}
	if cfg.Admin.Address == "" {
		warnings = append(warnings, Warning{Message: "admin.address is empty; admin API disabled"})
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return nil, errors.Newf("log.level %q is not a valid level", cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "otlphttp", "otlpgrpc", "none":
		default:
			return nil, errors.New("telemetry.exporter must be one of: otlphttp, otlpgrpc, none")
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			return nil, errors.New("telemetry.sampling_rate must be within [0, 1]")
		}
	}

	if cfg.Limits.MaxConnections <= 0 {
		return nil, errors.New("limits.max_connections must be > 0")
	}
	if cfg.Limits.AcceptPerSecond <= 0 {
		return nil, errors.New("limits.accept_per_second must be > 0")
	}
	if cfg.Limits.QueueDepth <= 0 {
		return nil, errors.New("limits.queue_depth must be > 0")
	}
	if cfg.Limits.QueueDepth > 4096 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("limits.queue_depth=%d is unusually large", cfg.Limits.QueueDepth)})
	}

	return warnings, nil
}
