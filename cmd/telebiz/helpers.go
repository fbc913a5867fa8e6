package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/telebiz/agentcore/internal/app"
	"github.com/telebiz/agentcore/internal/storage"
)

// exitOnError prints err and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openApp wires the full agent or exits.
func openApp(ctx context.Context) *app.App {
	a, err := app.New(ctx, cfg)
	if err != nil {
		exitOnError(err)
	}
	return a
}

// openStorage opens just the database, for commands that need no agent.
func openStorage() *storage.Storage {
	st, err := storage.New(cfg.DataDir)
	if err != nil {
		exitOnError(err)
	}
	return st
}
