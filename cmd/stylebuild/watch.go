package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yacobolo/stylebuild"
)

var watchCmd = &cobra.Command{
	Use:   "watch [SRC:OUT...]",
	Short: "Compile templates and recompile them on change",
	Long: `Run an initial update, then watch the template directories and run
another update after every burst of changes. Failed passes are reported
and watching continues until interrupted.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runWatch,
}

func init() {
	addBuildFlags(watchCmd)
	f := watchCmd.Flags()
	f.Bool("poll", false, "Poll the filesystem instead of using notifications")
	f.Duration("poll-interval", 0, "Polling interval (default 1s)")
	f.Duration("debounce", 0, "Quiet period before a pass starts (default 100ms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.notice("Watching templates; press Ctrl+C to stop")
	return engine.Watch(ctx)
}
