// Package app dispatches parsed commands to the server and client paths.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/rbright/boltd/internal/admin"
	"github.com/rbright/boltd/internal/auth"
	"github.com/rbright/boltd/internal/cli"
	"github.com/rbright/boltd/internal/config"
	"github.com/rbright/boltd/internal/doctor"
	"github.com/rbright/boltd/internal/logging"
	"github.com/rbright/boltd/internal/session"
	"github.com/rbright/boltd/internal/transport"
	"github.com/rbright/boltd/internal/version"
)

const clientTimeout = 5 * time.Second

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *zerolog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Stdin: os.Stdin}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("boltd"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("boltd"))
		return 0
	}

	switch parsed.Command {
	case cli.CommandVersion:
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	case cli.CommandHashPass:
		return r.commandHashPassword()
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var console io.Writer
	if cfgLoaded.Config.Log.Console && parsed.Command == cli.CommandServe {
		console = r.Stderr
	}
	logRuntime, err := logging.New(logging.Options{
		Level:   cfgLoaded.Config.Log.Level,
		Console: console,
		Version: version.Version,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := logRuntime.Logger
	if r.Logger != nil {
		logger = *r.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn().Msg(w.Message)
	}

	logger.Info().
		Str("command", string(parsed.Command)).
		Str("config", cfgLoaded.Path).
		Str(logging.FieldPath, logRuntime.Path).
		Msg("command start")

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfg, logger)
	case cli.CommandQuery:
		return r.commandQuery(ctx, cfg, parsed.User, parsed.Args[0])
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfg)
	case cli.CommandSessions:
		return r.commandSessions(ctx, cfg)
	case cli.CommandTerminate:
		return r.commandTerminate(ctx, cfg, parsed.Args[0])
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandHashPassword() int {
	in := r.Stdin
	if in == nil {
		in = os.Stdin
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(r.Stderr, "error: read password: %v\n", err)
		return 1
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		fmt.Fprintln(r.Stderr, "error: empty password")
		return 1
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, hash)
	return 0
}

// commandStatus prefers the admin API and falls back to probing the listener.
func (r Runner) commandStatus(ctx context.Context, cfg config.Config) int {
	if addr := strings.TrimSpace(cfg.Admin.Address); addr != "" {
		h, err := admin.NewClient(addr, clientTimeout).Health(ctx)
		if err == nil {
			fmt.Fprintf(r.Stdout, "running version=%s sessions=%d\n", h.Version, h.Sessions)
			return 0
		}
	}

	address, err := transport.ResolveAddress(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}
	alive, err := transport.Probe(ctx, cfg.Listen.Network, address, clientTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if alive {
		fmt.Fprintln(r.Stdout, "running")
	} else {
		fmt.Fprintln(r.Stdout, "stopped")
	}
	return 0
}

func (r Runner) commandSessions(ctx context.Context, cfg config.Config) int {
	client, ok := r.adminClient(cfg)
	if !ok {
		return 1
	}
	sessions, err := client.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(r.Stdout, "no sessions")
		return 0
	}
	for _, s := range sessions {
		fmt.Fprintf(
			r.Stdout,
			"%s | state=%s | principal=%q | remote=%s | protocol=%s | since=%s\n",
			s.ID,
			s.State,
			s.Principal,
			s.Remote,
			s.Protocol,
			s.ConnectedAt.Format(time.RFC3339),
		)
	}
	return 0
}

func (r Runner) commandTerminate(ctx context.Context, cfg config.Config, id string) int {
	client, ok := r.adminClient(cfg)
	if !ok {
		return 1
	}
	if err := client.Terminate(ctx, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			fmt.Fprintf(r.Stderr, "error: no session %q\n", id)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "terminated %s\n", id)
	return 0
}

func (r Runner) adminClient(cfg config.Config) (*admin.Client, bool) {
	addr := strings.TrimSpace(cfg.Admin.Address)
	if addr == "" {
		fmt.Fprintln(r.Stderr, "error: admin API is disabled (admin.address is empty)")
		return nil, false
	}
	return admin.NewClient(addr, clientTimeout), true
}
