package devserve

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// LoadConfig reads a Config from GAMEBUILD_DEV_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// snapshot records size and modification time of every regular file under root.
func snapshot(root string) (map[string]fileStamp, error) {
	files := make(map[string]fileStamp)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files[path] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// changed reports the first path that differs between two snapshots.
func changed(old, cur map[string]fileStamp) (string, bool) {
	for p, st := range cur {
		if prev, ok := old[p]; !ok || prev.size != st.size || !prev.modTime.Equal(st.modTime) {
			return p, true
		}
	}
	for p := range old {
		if _, ok := cur[p]; !ok {
			return p, true
		}
	}
	return "", false
}

// Watch polls dev.WatchDir every dev.Interval and rebuilds whenever a file
// is added, removed or modified. It returns when ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	interval := s.dev.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	last, err := snapshot(s.dev.WatchDir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.dev.WatchDir, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		cur, err := snapshot(s.dev.WatchDir)
		if err != nil {
			// Editors often replace files non-atomically; try again next tick.
			s.log.Debug("watch snapshot failed", "err", err)
			continue
		}
		path, ok := changed(last, cur)
		if !ok {
			continue
		}
		last = cur
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		// Failures are already logged and pushed to clients.
		_, _ = s.Rebuild(ctx, BuildOptions{Reason: "changed " + path})
	}
}
