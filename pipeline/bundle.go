package pipeline

import (
	"fmt"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

const globalsNamespace = "gamebuild-global"

// buildOptions returns the esbuild options for c. The bundle is written
// to c.Intermediate.
func (c *Config) buildOptions() api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints:       []string{c.Entry},
		Outfile:           c.Intermediate,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Target:            c.target(),
		MinifyWhitespace:  c.Minify,
		MinifyIdentifiers: c.Minify,
		MinifySyntax:      c.Minify,
		Sourcemap:         api.SourceMapNone,
		Pure:              c.Pure,
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Loader: map[string]api.Loader{
			".ts": api.LoaderTS,
		},
	}
	if c.ResolveGlobals {
		opts.Plugins = []api.Plugin{globalsPlugin(c.External, c.Global)}
	} else {
		opts.External = []string{c.External}
	}
	return opts
}

// bundle runs esbuild and returns its metafile.
func bundle(c *Config) (string, error) {
	result := api.Build(c.buildOptions())
	if len(result.Errors) > 0 {
		return "", &BundleError{Entry: c.Entry, Messages: result.Errors}
	}
	if len(result.OutputFiles) == 0 {
		return "", &BundleError{Entry: c.Entry}
	}
	return result.Metafile, nil
}

// globalsPlugin resolves imports of module to a stub that re-exports
// globalThis[global], so esbuild never emits a require call for it.
func globalsPlugin(module, global string) api.Plugin {
	filter := "^" + regexp.QuoteMeta(module) + "$"
	contents := fmt.Sprintf("module.exports = globalThis[%q];", global)
	return api.Plugin{
		Name: "global-externals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: globalsNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: globalsNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}
