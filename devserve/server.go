// Package devserve serves the built game page during development and
// rebuilds it when sources change, telling open browser tabs to reload.
package devserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/form"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/canopyclimate/gamebuild/internal/ctxlog"
	"github.com/canopyclimate/gamebuild/pipeline"
)

// Config holds the dev server settings.
type Config struct {
	Addr string `env:"GAMEBUILD_DEV_ADDR" envDefault:"localhost:8080"`
	// WatchDir is polled for changes; any change triggers a rebuild.
	WatchDir string        `env:"GAMEBUILD_DEV_WATCH" envDefault:"src"`
	Interval time.Duration `env:"GAMEBUILD_DEV_INTERVAL" envDefault:"500ms"`
	// RebuildEvery limits how often rebuilds may start.
	RebuildEvery time.Duration `env:"GAMEBUILD_DEV_REBUILD_EVERY" envDefault:"250ms"`
}

// reloadClient is appended to served pages. It is never written to disk.
const reloadClient = `<script>(function(){` +
	`var ws=new WebSocket((location.protocol==="https:"?"wss://":"ws://")+location.host+"/livereload");` +
	`ws.onmessage=function(e){if(e.data==="reload"){location.reload()}else{console.error(e.data)}};` +
	`})();</script>`

type buildFunc func(context.Context, pipeline.Config) (*pipeline.Result, error)

// Server rebuilds and serves a single artifact.
type Server struct {
	cfg     pipeline.Config
	dev     Config
	build   buildFunc
	hub     *hub
	limiter *rate.Limiter
	decoder *form.Decoder
	log     *slog.Logger

	mu sync.Mutex // serializes builds
}

// New returns a Server that builds cfg. Logging goes to the logger in ctx.
func New(ctx context.Context, cfg pipeline.Config, dev Config) *Server {
	log := ctxlog.FromContext(ctx)
	every := dev.RebuildEvery
	if every <= 0 {
		every = time.Millisecond
	}
	return &Server{
		cfg:     cfg,
		dev:     dev,
		build:   pipeline.Build,
		hub:     newHub(log),
		limiter: rate.NewLimiter(rate.Every(every), 1),
		decoder: form.NewDecoder(),
		log:     log,
	}
}

// Handler returns the HTTP routes of s.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.serveArtifact).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/livereload", s.hub).Methods(http.MethodGet)
	r.HandleFunc("/rebuild", s.serveRebuild).Methods(http.MethodPost)
	return r
}

// BuildOptions adjust a single rebuild.
type BuildOptions struct {
	// Minify overrides Config.Minify when non-nil.
	Minify *bool `form:"minify"`
	// Reason is logged with the rebuild.
	Reason string `form:"reason"`
}

// Rebuild runs the pipeline once and notifies connected clients:
// "reload" on success, "error <message>" on failure.
func (s *Server) Rebuild(ctx context.Context, opts BuildOptions) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	if opts.Minify != nil {
		cfg.Minify = *opts.Minify
	}
	start := time.Now()
	res, err := s.build(ctxlog.WithLogger(ctx, s.log), cfg)
	if err != nil {
		s.log.Error("rebuild failed", "reason", opts.Reason, "err", err)
		s.hub.broadcast("error " + err.Error())
		return nil, err
	}
	s.log.Info("rebuilt", "reason", opts.Reason, "bytes", res.Bytes, "took", time.Since(start))
	s.hub.broadcast("reload")
	return res, nil
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile(s.cfg.Output)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "artifact not built yet", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(injectReloadClient(string(b))))
}

func (s *Server) serveRebuild(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "rebuilding too often", http.StatusTooManyRequests)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var opts BuildOptions
	if err := s.decoder.Decode(&opts, r.Form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.Reason == "" {
		opts.Reason = "http"
	}
	res, err := s.Rebuild(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "built %s (%d bytes)\n", res.Artifact, res.Bytes)
}

// injectReloadClient inserts the reload script before the last </body>,
// or appends it when there is none.
func injectReloadClient(markup string) string {
	i := strings.LastIndex(markup, "</body>")
	if i < 0 {
		return markup + reloadClient
	}
	return markup[:i] + reloadClient + markup[i:]
}

// Run performs an initial build, then serves on dev.Addr and watches
// dev.WatchDir until ctx is done. A failed initial build is logged, not fatal.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.Rebuild(ctx, BuildOptions{Reason: "startup"}); err != nil {
		s.log.Warn("initial build failed; serving once a rebuild succeeds")
	}

	srv := &http.Server{Addr: s.dev.Addr, Handler: s.Handler()}
	errc := make(chan error, 2)
	go func() {
		errc <- s.Watch(ctx)
	}()
	go func() {
		s.log.Info("serving", "url", "http://"+s.dev.Addr+"/")
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			srv.Close()
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
