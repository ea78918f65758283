package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsnet/try"
)

// layout writes a tiny game into dir and returns GAMEBUILD_* settings for it.
func layout(t *testing.T, dir string) map[string]string {
	t.Helper()
	defer try.F(t.Fatal)
	try.E(os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	try.E(os.WriteFile(filepath.Join(dir, "src", "main.ts"), []byte(`import * as Phaser from "phaser";
document.title = "built " + Phaser.VERSION;
`), 0o644))
	try.E(os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<!DOCTYPE html>
<html><body>
<!-- replaced at build time -->
<script type="module" src="/src/main.ts"></script>
</body></html>
`), 0o644))
	return map[string]string{
		"GAMEBUILD_ENTRY":        filepath.Join(dir, "src", "main.ts"),
		"GAMEBUILD_TEMPLATE":     filepath.Join(dir, "index.html"),
		"GAMEBUILD_OUTPUT":       filepath.Join(dir, "dist", "index.html"),
		"GAMEBUILD_INTERMEDIATE": filepath.Join(dir, "dist", "bundle.js"),
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	for k, v := range layout(t, dir) {
		t.Setenv(k, v)
	}
	stderr := new(bytes.Buffer)
	if err := run(context.Background(), stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr.String(), "build complete") {
		t.Errorf("missing completion log:\n%s", stderr)
	}
	out, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<script>") || strings.Contains(string(out), "<!--") {
		t.Fatalf("unexpected artifact:\n%s", out)
	}
}

func TestRunBadConfig(t *testing.T) {
	t.Setenv("GAMEBUILD_TARGET", "es3")
	stderr := new(bytes.Buffer)
	if err := run(context.Background(), stderr); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr.String(), "Target must be one of") {
		t.Fatalf("got %q", stderr)
	}
}

// TestMainExitCodes runs the command in a subprocess because os.Exit
// cannot be intercepted in-process.
func TestMainExitCodes(t *testing.T) {
	if os.Getenv("BUILDGAME_TEST_SUBPROCESS") == "1" {
		main()
		return
	}

	tests := []struct {
		name     string
		env      map[string]string
		wantCode int
		artifact bool
	}{
		{"success", nil, 0, true},
		{"missing entry", map[string]string{"GAMEBUILD_ENTRY": "does/not/exist.ts"}, 1, false},
		{"marker in artifact", map[string]string{"GAMEBUILD_MARKERS": "built "}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			env := layout(t, dir)
			for k, v := range tt.env {
				env[k] = v
			}

			cmd := exec.Command(os.Args[0], "-test.run=^TestMainExitCodes$")
			cmd.Env = append(os.Environ(), "BUILDGAME_TEST_SUBPROCESS=1")
			for k, v := range env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			out, err := cmd.CombinedOutput()

			code := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else if err != nil {
				t.Fatal(err)
			}
			if code != tt.wantCode {
				t.Fatalf("exit code %d want %d\n%s", code, tt.wantCode, out)
			}

			_, err = os.Stat(env["GAMEBUILD_OUTPUT"])
			if exists := err == nil; exists != tt.artifact {
				t.Fatalf("artifact exists = %v want %v (%v)", exists, tt.artifact, err)
			}
			if _, err := os.Stat(env["GAMEBUILD_INTERMEDIATE"]); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("intermediate bundle left behind: %v", err)
			}
		})
	}
}
