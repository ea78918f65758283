// Package pipeline turns a TypeScript entry module and an HTML template into
// a single self-contained HTML artifact with the bundle inlined.
//
// A build runs these stages in order, stopping at the first error:
//
//   - bundle the entry with esbuild, leaving the external module out
//   - read the intermediate bundle and the template
//   - patch require-style references to the external module into its global
//   - drop <script type="module"> and inline the bundle at the end of <body>
//   - strip HTML comments
//   - write the artifact and remove the intermediate bundle
//   - re-read the artifact and reject it if an unresolved reference remains
//
// Builds against the same output paths must not run concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/canopyclimate/gamebuild/internal/ctxlog"
)

// Result describes a finished build.
type Result struct {
	Artifact string
	Bytes    int
	Report   *Report // nil unless Config.Report is set
}

// Build runs the pipeline described by cfg.
// On an *IntegrityError the artifact has already been written and is left in place.
func Build(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer removeIntermediate(cfg.Intermediate)

	meta, err := bundle(&cfg)
	if err != nil {
		return nil, err
	}
	log.Info("bundled", "stage", "bundle", "entry", cfg.Entry, "path", cfg.Intermediate)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := os.ReadFile(cfg.Intermediate)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	tmpl, err := os.ReadFile(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	log.Debug("read inputs", "stage", "read", "bundle_bytes", len(code), "template_bytes", len(tmpl))

	patched := PatchExternal(string(code), cfg.External, cfg.Global)
	log.Info("patched external references", "stage", "patch", "external", cfg.External, "global", cfg.Global)

	markup, err := InlineBundle(string(tmpl), patched)
	if err != nil {
		return nil, err
	}
	markup = StripComments(markup)
	log.Info("rewrote template", "stage", "template", "path", cfg.Template)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.WriteFile(cfg.Output, []byte(markup), 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := removeIntermediate(cfg.Intermediate); err != nil {
		log.Warn("could not remove intermediate bundle", "path", cfg.Intermediate, "err", err)
	}
	log.Info("wrote artifact", "stage", "write", "path", cfg.Output, "bytes", len(markup))

	if err := verify(&cfg); err != nil {
		return nil, err
	}

	res := &Result{Artifact: cfg.Output, Bytes: len(markup)}
	if cfg.Report != "" {
		r, err := newReport(&cfg, meta, len(markup))
		if err != nil {
			return nil, err
		}
		if err := writeReport(cfg.Report, r); err != nil {
			return nil, err
		}
		log.Info("wrote report", "stage", "report", "path", cfg.Report, "build_id", r.BuildID)
		res.Report = r
	}
	return res, nil
}

// verify re-reads the written artifact and checks it for unresolved
// references to the external module.
func verify(cfg *Config) error {
	b, err := os.ReadFile(cfg.Output)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if m := findUnresolved(string(b), cfg.External, cfg.markers()); m != "" {
		return &IntegrityError{Path: cfg.Output, Marker: m}
	}
	return nil
}

// removeIntermediate deletes the intermediate bundle; a missing file is not an error.
func removeIntermediate(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
