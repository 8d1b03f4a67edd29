// Command boltd serves Bolt sessions and the tools that manage them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/boltd/internal/app"
)

func main() {
	os.Exit(run())
}

// run returns instead of exiting so the signal handler is released first.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
