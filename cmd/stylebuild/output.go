package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/yacobolo/stylebuild"
	"github.com/yacobolo/stylebuild/internal/report"
)

// output bundles the logger, terminal reporter and pass printer configured
// by the global flags.
type output struct {
	w        io.Writer
	logger   *slog.Logger
	reporter *report.Reporter
	printer  *report.Printer
	verbose  bool
	quiet    bool
}

func newOutput(w io.Writer) *output {
	verbose := getBoolWithFallback("verbose", "verbose", false)
	quiet := getBoolWithFallback("quiet", "quiet", false)
	format := report.DetermineOutputFormat(getStringWithFallback("output-format", "output-format", ""), quiet)
	useColors := report.ShouldUseColors(os.Stdout, getBoolWithFallback("color", "color", false))
	if format == report.OutputJSON {
		useColors = false
	}

	reporter := report.NewReporter(w, report.Options{
		UseColors: useColors,
		Verbose:   verbose,
		Quiet:     quiet,
	})
	return &output{
		w:        w,
		logger:   newLogger(os.Stderr, verbose, getStringWithFallback("log-format", "log-format", "text")),
		reporter: reporter,
		printer:  report.NewPrinter(w, format, reporter),
		verbose:  verbose,
		quiet:    quiet,
	}
}

// adapters returns the event consumers for the selected output.
func (o *output) adapters() []stylebuild.Adapter {
	var adapters []stylebuild.Adapter
	if o.printer.LiveEvents() {
		adapters = append(adapters, o.reporter)
	}
	if o.verbose {
		adapters = append(adapters, report.NewLogAdapter(o.logger))
	}
	return adapters
}

func (o *output) printPass(result *stylebuild.PassResult, err error) {
	if perr := o.printer.Print(result, err); perr != nil {
		o.logger.Error("writing pass output", "error", perr)
	}
}

func (o *output) notice(msg string) {
	if o.quiet || o.printer.Format() == report.OutputJSON {
		return
	}
	fmt.Fprintln(o.w, report.RenderStyle(report.StyleGray, msg, o.reporter.UseColors()))
}

// newLogger builds the stderr logger: debug level with --verbose, warnings otherwise.
func newLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
