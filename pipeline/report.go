package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// metafile is the subset of esbuild's metafile the report needs.
type metafile struct {
	Inputs  map[string]metafileInput  `json:"inputs"`
	Outputs map[string]metafileOutput `json:"outputs"`
}

type metafileInput struct {
	Bytes int `json:"bytes"`
}

type metafileOutput struct {
	Bytes   int                             `json:"bytes"`
	Inputs  map[string]metafileContribution `json:"inputs"`
	Imports []metafileImport                `json:"imports"`
}

type metafileContribution struct {
	BytesInOutput int `json:"bytesInOutput"`
}

type metafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// Report summarizes one successful build.
type Report struct {
	BuildID       string        `json:"buildId"`
	Entry         string        `json:"entry"`
	Artifact      string        `json:"artifact"`
	ArtifactBytes int           `json:"artifactBytes"`
	BundleBytes   int           `json:"bundleBytes"`
	Inputs        []InputReport `json:"inputs"`
	Externals     []string      `json:"externals"`
}

// InputReport is one source file's share of the bundle.
type InputReport struct {
	Path          string `json:"path"`
	Bytes         int    `json:"bytes"`
	BytesInOutput int    `json:"bytesInOutput"`
}

// newReport builds a Report from the raw esbuild metafile JSON.
func newReport(c *Config, meta string, artifactBytes int) (*Report, error) {
	var m metafile
	if err := json.Unmarshal([]byte(meta), &m); err != nil {
		return nil, fmt.Errorf("decode metafile: %w", err)
	}

	r := &Report{
		BuildID:       uuid.New().String(),
		Entry:         c.Entry,
		Artifact:      c.Output,
		ArtifactBytes: artifactBytes,
		Inputs:        []InputReport{},
		Externals:     []string{},
	}
	inBundle := make(map[string]int)
	for _, out := range m.Outputs {
		r.BundleBytes += out.Bytes
		for path, in := range out.Inputs {
			inBundle[path] += in.BytesInOutput
		}
		for _, imp := range out.Imports {
			if imp.External && !slices.Contains(r.Externals, imp.Path) {
				r.Externals = append(r.Externals, imp.Path)
			}
		}
	}
	slices.Sort(r.Externals)

	paths := maps.Keys(m.Inputs)
	slices.Sort(paths)
	for _, p := range paths {
		r.Inputs = append(r.Inputs, InputReport{
			Path:          p,
			Bytes:         m.Inputs[p].Bytes,
			BytesInOutput: inBundle[p],
		})
	}
	return r, nil
}

// writeReport encodes r as indented JSON at path, creating its directory.
func writeReport(path string, r *Report) error {
	b, err := json.MarshalOptions{}.Marshal(json.EncodeOptions{Indent: "\t"}, r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
