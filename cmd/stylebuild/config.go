package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/yacobolo/stylebuild"
	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

const defaultConfigPath = ".stylebuild.yaml"

var k = koanf.New(".")

// loadConfig loads configuration with precedence: flags > env > file > defaults.
// It must be called after cobra parses flags (in PreRunE or RunE).
func loadConfig(cmd *cobra.Command) error {
	// Resolve config file path from flag
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load config file and env vars
	if err := loadConfigFromPath(configPath); err != nil {
		return err
	}

	// 3. CLI flags (highest precedence, only flags that were explicitly set)
	fs := cmd.Flags()
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed {
			return "", nil
		}
		return f.Name, posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return fmt.Errorf("loading command flags: %w", err)
	}

	return nil
}

// loadConfigFromPath loads configuration from a file and environment variables.
// This is separated from loadConfig to allow testing without a cobra command.
func loadConfigFromPath(configPath string) error {
	// 1. Config file (lowest precedence among providers)
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	// 2. Environment variables (STYLEBUILD_* prefix)
	if err := k.Load(env.Provider("STYLEBUILD_", ".", func(s string) string {
		// STYLEBUILD_BUILD_STYLE -> build.style
		// STYLEBUILD_WATCH_POLL -> watch.poll
		// STYLEBUILD_VERBOSE -> verbose
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "STYLEBUILD_")),
			"_", ".",
		)
	}), nil); err != nil {
		return fmt.Errorf("loading environment variables: %w", err)
	}

	return nil
}

// buildEngineOptions constructs the engine Options from koanf state.
// Template locations given as arguments replace the configured ones.
func buildEngineOptions(args []string) (stylebuild.Options, error) {
	locations, err := templateLocations(args)
	if err != nil {
		return stylebuild.Options{}, err
	}
	buildOpts, err := buildBuildOptions()
	if err != nil {
		return stylebuild.Options{}, err
	}

	opts := stylebuild.Options{
		Locations:     locations,
		LoadPaths:     getStringsWithFallback("load-path", "load-paths", nil),
		Extensions:    getStringsWithFallback("extension", "extensions", nil),
		CacheLocation: getStringWithFallback("cache-location", "cache-location", ".stylebuild-cache"),
		Build:         buildOpts,
		Watch: stylebuild.WatchOptions{
			Poll:         getBoolWithFallback("poll", "watch.poll", false),
			PollInterval: getDurationWithFallback("poll-interval", "watch.poll-interval", time.Second),
			Debounce:     getDurationWithFallback("debounce", "watch.debounce", 100*time.Millisecond),
		},
	}
	if getBoolWithFallback("no-cache", "no-cache", false) {
		opts.CacheLocation = ""
	}
	return opts, nil
}

// buildBuildOptions constructs the orchestrator options from koanf state.
func buildBuildOptions() (build.Options, error) {
	style, err := compiler.ParseStyle(getStringWithFallback("style", "build.style", string(compiler.StyleExpanded)))
	if err != nil {
		return build.Options{}, err
	}
	dialectName := getStringWithFallback("dialect", "build.dialect", string(syntax.DialectSCSS))
	dialect, ok := syntax.ParseDialect(dialectName)
	if !ok {
		return build.Options{}, fmt.Errorf("unknown dialect %q (want scss or css)", dialectName)
	}
	display, err := build.ParseErrorDisplay(getStringWithFallback("error-display", "build.error-display", string(build.ErrorDisplayNone)))
	if err != nil {
		return build.Options{}, err
	}
	policy, err := freshness.ParsePolicy(getStringWithFallback("policy", "build.policy", string(freshness.PolicyHash)))
	if err != nil {
		return build.Options{}, err
	}

	return build.Options{
		Style:         style,
		Dialect:       dialect,
		LineComments:  getBoolWithFallback("line-comments", "build.line-comments", false),
		ErrorDisplay:  display,
		AbortOnError:  getBoolWithFallback("abort-on-error", "build.abort-on-error", false),
		IOErrorsFatal: getBoolWithFallback("io-errors-fatal", "build.io-errors-fatal", false),
		AlwaysUpdate:  getBoolWithFallback("force", "build.always-update", false),
		Policy:        policy,
	}, nil
}

// templateLocations parses SRC:OUT pairs: arguments first, then --template
// flags, then the templates list of the config file.
func templateLocations(args []string) ([]source.Location, error) {
	specs := args
	if len(specs) == 0 {
		specs = getStringsWithFallback("template", "templates", nil)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no template locations: pass SRC:OUT arguments or set templates in %s", defaultConfigPath)
	}

	locations := make([]source.Location, 0, len(specs))
	for _, s := range specs {
		loc, err := source.ParseLocation(s)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// getStringWithFallback checks the flag key first, then the config file key, then returns the default.
func getStringWithFallback(flagKey, configKey, defaultVal string) string {
	if v := k.String(flagKey); v != "" {
		return v
	}
	if v := k.String(configKey); v != "" {
		return v
	}
	return defaultVal
}

// getStringsWithFallback checks the flag key first, then the config file key, then returns the default.
func getStringsWithFallback(flagKey, configKey string, defaultVal []string) []string {
	if v := k.Strings(flagKey); len(v) > 0 {
		return v
	}
	if v := k.Strings(configKey); len(v) > 0 {
		return v
	}
	return defaultVal
}

// getBoolWithFallback checks the flag key first, then the config file key, then returns the default.
func getBoolWithFallback(flagKey, configKey string, defaultVal bool) bool {
	if k.Exists(flagKey) {
		return k.Bool(flagKey)
	}
	if k.Exists(configKey) {
		return k.Bool(configKey)
	}
	return defaultVal
}

// getDurationWithFallback checks the flag key first, then the config file key, then returns the default.
func getDurationWithFallback(flagKey, configKey string, defaultVal time.Duration) time.Duration {
	if k.Exists(flagKey) {
		return k.Duration(flagKey)
	}
	if k.Exists(configKey) {
		return k.Duration(configKey)
	}
	return defaultVal
}
