package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/boltd/internal/admin"
	"github.com/rbright/boltd/internal/auth"
	"github.com/rbright/boltd/internal/config"
	"github.com/rbright/boltd/internal/engine"
	"github.com/rbright/boltd/internal/fsm"
	"github.com/rbright/boltd/internal/health"
	"github.com/rbright/boltd/internal/logging"
	"github.com/rbright/boltd/internal/metrics"
	"github.com/rbright/boltd/internal/reporting"
	"github.com/rbright/boltd/internal/session"
	"github.com/rbright/boltd/internal/telemetry"
	"github.com/rbright/boltd/internal/transport"
	"github.com/rbright/boltd/internal/version"
)

// commandServe runs the session listener with the admin and health servers
// until ctx is cancelled or one of them fails.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, log zerolog.Logger) int {
	table, err := fsm.TableFor(cfg.Protocol.Version)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)
	registry := session.NewRegistry(m)

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "boltd",
		ServiceVersion: version.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	srv, err := transport.NewServer(transport.Options{
		Table:           table,
		Engine:          engine.New(auth.NewStore(authOptions(cfg.Auth)), nil),
		Registry:        registry,
		Reporter:        reporting.New(log, version.Server(), m),
		Observer:        m,
		Tracer:          tracing.Tracer(),
		Logger:          log,
		MaxConnections:  cfg.Limits.MaxConnections,
		AcceptPerSecond: cfg.Limits.AcceptPerSecond,
		QueueDepth:      cfg.Limits.QueueDepth,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := transport.Listen(ctx, cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if cfg.Listen.Network == "unix" {
		socketPath := listener.Addr().String()
		defer func() { _ = os.Remove(socketPath) }()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Serve(groupCtx, listener) })

	if addr := strings.TrimSpace(cfg.Admin.Address); addr != "" {
		handler := admin.NewHandler(admin.Options{
			Registry:      registry,
			Gatherer:      promRegistry,
			Logger:        log,
			Version:       version.Version,
			RatePerMinute: cfg.Admin.RatePerMinute,
			Trace:         cfg.Telemetry.Enabled,
		})
		group.Go(func() error { return admin.Serve(groupCtx, addr, handler) })
		log.Info().Str(logging.FieldAddress, addr).Msg("admin API enabled")
	}

	if addr := strings.TrimSpace(cfg.Health.Address); addr != "" {
		hs := health.NewServer()
		hs.SetServing(true)
		group.Go(func() error { return hs.Serve(groupCtx, addr) })
		log.Info().Str(logging.FieldAddress, addr).Msg("health service enabled")
	}

	log.Info().
		Str("protocol", table.Version()).
		Str(logging.FieldAddress, listener.Addr().String()).
		Msg("boltd serving")

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	log.Info().Msg("boltd stopped")
	return 0
}

func authOptions(cfg config.AuthConfig) auth.Options {
	users := make([]auth.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, auth.User{
			Name:               u.Name,
			PasswordHash:       u.PasswordHash,
			CredentialsExpired: u.CredentialsExpired,
		})
	}
	return auth.Options{
		Users:    users,
		Disabled: !cfg.Enabled,
		Lifetime: cfg.CredentialLifetime,
	}
}
