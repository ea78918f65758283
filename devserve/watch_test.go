package devserve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dsnet/try"
)

func TestChanged(t *testing.T) {
	now := time.Now()
	base := map[string]fileStamp{
		"a.ts": {size: 1, modTime: now},
		"b.ts": {size: 2, modTime: now},
	}
	tests := []struct {
		name string
		cur  map[string]fileStamp
		want bool
	}{
		{"same", map[string]fileStamp{"a.ts": {1, now}, "b.ts": {2, now}}, false},
		{"resized", map[string]fileStamp{"a.ts": {3, now}, "b.ts": {2, now}}, true},
		{"touched", map[string]fileStamp{"a.ts": {1, now.Add(time.Second)}, "b.ts": {2, now}}, true},
		{"added", map[string]fileStamp{"a.ts": {1, now}, "b.ts": {2, now}, "c.ts": {0, now}}, true},
		{"removed", map[string]fileStamp{"a.ts": {1, now}}, true},
	}
	for _, tt := range tests {
		if _, got := changed(base, tt.cur); got != tt.want {
			t.Errorf("%s: changed = %v want %v", tt.name, got, tt.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	defer try.F(t.Fatal)
	dir := t.TempDir()
	try.E(os.MkdirAll(filepath.Join(dir, "scenes"), 0o755))
	try.E(os.WriteFile(filepath.Join(dir, "main.ts"), []byte("abc"), 0o644))
	try.E(os.WriteFile(filepath.Join(dir, "scenes", "boot.ts"), []byte("x"), 0o644))

	snap := try.E1(snapshot(dir))
	if len(snap) != 2 {
		t.Fatalf("got %d files want 2: %v", len(snap), snap)
	}
	if st := snap[filepath.Join(dir, "main.ts")]; st.size != 3 {
		t.Errorf("got size %d want 3", st.size)
	}
}

func TestWatchRebuildsOnChange(t *testing.T) {
	defer try.F(t.Fatal)
	s, fb := newTestServer(t, Config{Interval: 10 * time.Millisecond})
	src := filepath.Join(s.dev.WatchDir, "main.ts")
	try.E(os.WriteFile(src, []byte("let a = 1;"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Let the watcher take its first snapshot before editing.
	time.Sleep(50 * time.Millisecond)
	if fb.count() != 0 {
		t.Fatalf("rebuilt without a change: %d", fb.count())
	}
	try.E(os.WriteFile(src, []byte("let a = 12;"), 0o644))
	waitFor(t, "rebuild", func() bool { return fb.count() >= 1 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestWatchContinuesAfterFailedRebuild(t *testing.T) {
	defer try.F(t.Fatal)
	s, fb := newTestServer(t, Config{Interval: 10 * time.Millisecond})
	fb.mu.Lock()
	fb.err = errors.New("syntax error")
	fb.mu.Unlock()
	src := filepath.Join(s.dev.WatchDir, "main.ts")
	try.E(os.WriteFile(src, []byte("let a = ;"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	try.E(os.WriteFile(src, []byte("let a = 1;"), 0o644))
	waitFor(t, "first rebuild", func() bool { return fb.count() >= 1 })
	try.E(os.WriteFile(src, []byte("let a = 12;"), 0o644))
	waitFor(t, "rebuild after failure", func() bool { return fb.count() >= 2 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestWatchMissingDir(t *testing.T) {
	s, _ := newTestServer(t, Config{WatchDir: filepath.Join(t.TempDir(), "nope")})
	if err := s.Watch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("GAMEBUILD_DEV_INTERVAL", "2s")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "localhost:8080" || cfg.WatchDir != "src" || cfg.Interval != 2*time.Second {
		t.Fatalf("got %+v", cfg)
	}
}
