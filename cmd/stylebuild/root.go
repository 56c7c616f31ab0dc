package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stylebuild [SRC:OUT...]",
	Short: "Incremental SCSS-like stylesheet compiler",
	Long: `Compile template stylesheets into CSS.
Only templates whose sources or imports changed are recompiled;
outputs of removed templates are deleted.`,
	Args: cobra.ArbitraryArgs,
	// Default behavior: run update when no subcommand is given.
	// We must call loadConfig here because PreRunE of updateCmd
	// is not triggered when delegating via rootCmd.RunE.
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		return runUpdate(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags (inherited by all subcommands)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Print errors only")
	rootCmd.PersistentFlags().Bool("color", false, "Force color output")
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "Config file path")
	rootCmd.PersistentFlags().String("log-format", "", "Log format on stderr: text|json")

	addBuildFlags(rootCmd)

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}

// addBuildFlags adds the flags shared by every command that runs passes.
func addBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("template", nil, "Template location SRC:OUT (repeatable)")
	f.StringSlice("load-path", nil, "Extra directory searched for imports (repeatable)")
	f.StringSlice("extension", nil, "Template file extension (default .scss,.css)")
	f.String("style", "", "Output style: nested|expanded|compact|compressed")
	f.String("dialect", "", "Template dialect: scss|css")
	f.String("error-display", "", "On error: none|css (write a stylesheet showing the error)")
	f.String("policy", "", "Staleness policy: mtime|hash")
	f.Bool("line-comments", false, "Emit /* line N, file */ before each rule")
	f.Bool("abort-on-error", false, "Stop the pass at the first failed template")
	f.Bool("io-errors-fatal", false, "Fail the pass on filesystem errors")
	f.BoolP("force", "f", false, "Recompile every template")
	f.String("cache-location", "", "Directory of the freshness cache")
	f.Bool("no-cache", false, "Keep the freshness cache in memory only")
	f.String("output-format", "", "Output format: text|summary|full|json")

	for name, values := range map[string][]string{
		"style":         {"nested", "expanded", "compact", "compressed"},
		"dialect":       {"scss", "css"},
		"error-display": {"none", "css"},
		"policy":        {"mtime", "hash"},
		"output-format": {"text", "summary", "full", "json"},
	} {
		_ = cmd.RegisterFlagCompletionFunc(name, cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp))
	}
}
