package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yacobolo/stylebuild"
)

// errBuildFailed signals that at least one template failed; the failures
// themselves have already been reported.
var errBuildFailed = errors.New("build failed")

var updateCmd = &cobra.Command{
	Use:   "update [SRC:OUT...]",
	Short: "Compile stale templates once",
	Long: `Compile every template whose output is missing or older than its sources,
then delete outputs whose templates no longer exist.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runUpdate,
}

func init() {
	addBuildFlags(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts, err := buildEngineOptions(args)
	if err != nil {
		return err
	}

	out := newOutput(cmd.OutOrStdout())
	engine, err := stylebuild.New(opts, nil,
		stylebuild.WithLogger(out.logger),
		stylebuild.WithPassHook(out.printPass),
	)
	if err != nil {
		return err
	}
	if err := engine.Use(out.adapters()...); err != nil {
		return err
	}

	result, err := engine.Update(cmd.Context())
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if result.HasFailures() {
		return errBuildFailed
	}
	return nil
}
