package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default .stylebuild.yaml config file",
	Long:  `Create a .stylebuild.yaml configuration file in the current directory with sensible defaults.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(defaultConfigPath); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", defaultConfigPath)
		}

		if err := os.WriteFile(defaultConfigPath, []byte(defaultConfig), 0o644); err != nil { // #nosec G306 - config is meant to be shared
			return fmt.Errorf("writing config file: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", defaultConfigPath)
		return nil
	},
}

const defaultConfig = `# stylebuild configuration
# Docs: https://github.com/yacobolo/stylebuild

# Template locations: SRC:OUT pairs
templates:
  - "styles:public/css"

# Extra directories searched for imports
load-paths: []

extensions: [".scss", ".css"]
cache-location: .stylebuild-cache
verbose: false
output-format: text        # text | summary | full | json

# Compilation settings
build:
  style: expanded          # nested | expanded | compact | compressed
  dialect: scss            # scss | css
  error-display: none      # none | css
  policy: hash             # mtime | hash
  line-comments: false
  abort-on-error: false
  io-errors-fatal: false
  always-update: false

# Watch settings
watch:
  poll: false
  poll-interval: 1s
  debounce: 100ms
`

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
