package pipeline

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Config describes one run of the pipeline.
// Relative paths are resolved against the process working directory.
type Config struct {
	// Entry is the TypeScript module esbuild starts from.
	Entry string `env:"GAMEBUILD_ENTRY" envDefault:"src/main.ts" validate:"required"`
	// Template is the HTML page the bundle is inlined into.
	Template string `env:"GAMEBUILD_TEMPLATE" envDefault:"index.html" validate:"required"`
	// Output is where the finished artifact is written.
	Output string `env:"GAMEBUILD_OUTPUT" envDefault:"dist/index.html" validate:"required,nefield=Intermediate,nefield=Template"`
	// Intermediate is the bundle file esbuild writes; it is removed before Build returns.
	Intermediate string `env:"GAMEBUILD_INTERMEDIATE" envDefault:"dist/bundle.js" validate:"required,nefield=Template,nefield=Entry"`
	// Report, if non-empty, is where a JSON build report is written.
	Report string `env:"GAMEBUILD_REPORT" validate:"omitempty,nefield=Output,nefield=Template,nefield=Intermediate"`

	// External is the module left out of the bundle.
	External string `env:"GAMEBUILD_EXTERNAL" envDefault:"phaser" validate:"required"`
	// Global is the name the external module is reachable by at runtime.
	Global string `env:"GAMEBUILD_GLOBAL" envDefault:"Phaser" validate:"required"`
	// ResolveGlobals maps External to Global inside esbuild instead of
	// relying on the textual patch alone.
	ResolveGlobals bool `env:"GAMEBUILD_RESOLVE_GLOBALS"`

	Target string   `env:"GAMEBUILD_TARGET" envDefault:"es2020" validate:"oneof=es2015 es2016 es2017 es2018 es2019 es2020 es2021 es2022 esnext"`
	Minify bool     `env:"GAMEBUILD_MINIFY" envDefault:"true"`
	Pure   []string `env:"GAMEBUILD_PURE" envDefault:"console.log"`
	// Markers are substrings that must never appear in a finished artifact.
	// When empty, the require forms of External are used.
	Markers []string `env:"GAMEBUILD_MARKERS"`

	LogLevel string `env:"GAMEBUILD_LOG_LEVEL" envDefault:"info"`
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func (c *Config) target() api.Target {
	if t, ok := targets[c.Target]; ok {
		return t
	}
	return api.ES2020
}

func (c *Config) markers() []string {
	if len(c.Markers) > 0 {
		return c.Markers
	}
	return []string{
		fmt.Sprintf(`require("%s")`, c.External),
		fmt.Sprintf(`require('%s')`, c.External),
	}
}

// LoadConfig reads a Config from GAMEBUILD_* environment variables,
// applies defaults and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultConfig returns the Config LoadConfig would produce with no
// GAMEBUILD_* variables set.
func DefaultConfig() Config {
	var cfg Config
	// Defaults only; the environment is not consulted.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(err)
	}
	return cfg
}

// A ConfigError lists the invalid fields of a Config.
type ConfigError struct {
	Fields map[string]string // field name to message
}

func (e *ConfigError) Error() string {
	names := maps.Keys(e.Fields)
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+" "+e.Fields[n])
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

// Validate reports whether c can be built, returning a *ConfigError if not.
func (c *Config) Validate() error {
	err := configValidator.validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	ce := &ConfigError{Fields: make(map[string]string)}
	for k, v := range verrs.Translate(configValidator.translator) {
		ce.Fields[strings.TrimPrefix(k, "Config.")] = v
	}
	return ce
}

type translatingValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var configValidator = newTranslatingValidator()

// newTranslatingValidator configures English messages for the tags Config uses.
func newTranslatingValidator() translatingValidator {
	v := validator.New()
	locale := en.New()
	uni := ut.New(locale, locale)
	t, _ := uni.GetTranslator("en")

	register := func(tag string, msg func(fe validator.FieldError) string) {
		err := v.RegisterTranslation(tag, t,
			func(ut.Translator) error { return nil },
			func(_ ut.Translator, fe validator.FieldError) string { return msg(fe) },
		)
		if err != nil {
			panic(err)
		}
	}
	register("required", func(validator.FieldError) string {
		return "is required"
	})
	register("oneof", func(fe validator.FieldError) string {
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	})
	register("nefield", func(fe validator.FieldError) string {
		return fmt.Sprintf("must differ from %s", fe.Param())
	})

	return translatingValidator{validate: v, translator: t}
}
