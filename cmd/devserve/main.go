// Command devserve builds the game page, serves it with live reload and
// rebuilds whenever the sources change.
//
// Build settings come from GAMEBUILD_* and server settings from
// GAMEBUILD_DEV_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/canopyclimate/gamebuild/devserve"
	"github.com/canopyclimate/gamebuild/internal/ctxlog"
	"github.com/canopyclimate/gamebuild/pipeline"
)

func main() {
	cfg, err := pipeline.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dev, err := devserve.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, ctxlog.New(os.Stderr, cfg.LogLevel))

	if err := devserve.New(ctx, cfg, dev).Run(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("dev server stopped", "err", err)
		os.Exit(1)
	}
}
