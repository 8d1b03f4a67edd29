// Package doctor runs readiness diagnostics for config, the session listener,
// and the admin and health endpoints.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/boltd/internal/admin"
	"github.com/rbright/boltd/internal/config"
	"github.com/rbright/boltd/internal/health"
	"github.com/rbright/boltd/internal/transport"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config and runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{configCheck(cfg)}

	if cfg.Config.Listen.Network == "unix" && strings.TrimSpace(cfg.Config.Listen.Address) == "" {
		checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "runtime dir available for the session socket", "XDG_RUNTIME_DIR is empty"))
	}

	checks = append(checks, checkAuth(cfg.Config.Auth))
	checks = append(checks, checkListener(ctx, cfg.Config.Listen))
	if addr := strings.TrimSpace(cfg.Config.Health.Address); addr != "" {
		checks = append(checks, checkHealth(ctx, addr))
	}
	if addr := strings.TrimSpace(cfg.Config.Admin.Address); addr != "" {
		checks = append(checks, checkAdmin(ctx, addr))
	}

	return Report{Checks: checks}
}

func configCheck(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found, using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkAuth(cfg config.AuthConfig) Check {
	switch {
	case !cfg.Enabled:
		return Check{Name: "auth", Pass: true, Message: "authentication disabled; every client is accepted"}
	case len(cfg.Users) == 0:
		return Check{Name: "auth", Pass: false, Message: "authentication enabled but no users configured"}
	default:
		return Check{Name: "auth", Pass: true, Message: fmt.Sprintf("%d user(s) configured", len(cfg.Users))}
	}
}

// checkListener verifies that a server accepts session connections.
func checkListener(ctx context.Context, cfg config.ListenConfig) Check {
	address, err := transport.ResolveAddress(cfg.Network, cfg.Address)
	if err != nil {
		return Check{Name: "listen", Pass: false, Message: err.Error()}
	}
	alive, err := transport.Probe(ctx, cfg.Network, address, probeTimeout)
	if err != nil {
		return Check{Name: "listen", Pass: false, Message: err.Error()}
	}
	if !alive {
		return Check{Name: "listen", Pass: false, Message: fmt.Sprintf("no server at %s %s", cfg.Network, address)}
	}
	return Check{Name: "listen", Pass: true, Message: fmt.Sprintf("accepting at %s %s", cfg.Network, address)}
}

func checkHealth(ctx context.Context, address string) Check {
	status, err := health.Probe(ctx, address, probeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "health",
		Pass:    status == healthpb.HealthCheckResponse_SERVING,
		Message: fmt.Sprintf("%s reports %s", address, status),
	}
}

func checkAdmin(ctx context.Context, address string) Check {
	h, err := admin.NewClient(address, probeTimeout).Health(ctx)
	if err != nil {
		return Check{Name: "admin", Pass: false, Message: err.Error()}
	}
	return Check{Name: "admin", Pass: true, Message: fmt.Sprintf("%s %s, %d session(s)", h.Status, h.Version, h.Sessions)}
}
