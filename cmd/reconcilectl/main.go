// Command reconcilectl runs identify and administrative operations directly
// against the configured contact store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"reconciler/internal/platform/config"
	"reconciler/internal/platform/logger"
)

func main() {
	cfg := config.FromEnv()
	// keep stdout for command output
	cfg.Log.Format = "text"
	log := logger.NewWithWriter(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newApp(cfg, log, os.Stdout))
	if err := root.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
