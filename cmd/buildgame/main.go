// Command buildgame bundles the game entry module and inlines it into the
// HTML template, producing a single self-contained page.
//
// It takes no flags. Paths and bundling options come from GAMEBUILD_*
// environment variables; see pipeline.Config. The exit status is 0 on
// success and 1 on any failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/canopyclimate/gamebuild/internal/ctxlog"
	"github.com/canopyclimate/gamebuild/pipeline"
)

func main() {
	if err := run(context.Background(), os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the artifact, reporting progress and failures to stderr.
func run(ctx context.Context, stderr io.Writer) error {
	cfg, err := pipeline.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return err
	}
	log := ctxlog.New(stderr, cfg.LogLevel)
	ctx = ctxlog.WithLogger(ctx, log)

	res, err := pipeline.Build(ctx, cfg)
	var be *pipeline.BundleError
	var ie *pipeline.IntegrityError
	switch {
	case errors.As(err, &be):
		for _, msg := range be.Formatted() {
			fmt.Fprint(stderr, msg)
		}
		log.Error("bundling failed", "entry", be.Entry, "errors", len(be.Messages))
		return err
	case errors.As(err, &ie):
		log.Error("artifact failed validation", "path", ie.Path, "marker", ie.Marker)
		return err
	case err != nil:
		log.Error("build failed", "err", err)
		return err
	}
	log.Info("build complete", "artifact", res.Artifact, "bytes", res.Bytes)
	return nil
}
