package report

import (
	"fmt"
	"io"

	"github.com/yacobolo/stylebuild/internal/build"
)

// OutputFormat selects how pass results are shown.
type OutputFormat string

const (
	// OutputText prints one line per event plus a summary line.
	OutputText OutputFormat = "text"
	// OutputSummary prints the summary and statistics only (errors still show).
	OutputSummary OutputFormat = "summary"
	// OutputFull prints event lines, summary and statistics.
	OutputFull OutputFormat = "full"
	// OutputJSON writes the pass result as JSON.
	OutputJSON OutputFormat = "json"
)

// DetermineOutputFormat selects the output format from the flag value.
// Quiet wins and reduces the text format to errors only.
func DetermineOutputFormat(formatFlag string, quiet bool) OutputFormat {
	if quiet {
		return OutputText
	}
	switch OutputFormat(formatFlag) {
	case OutputText, OutputSummary, OutputFull, OutputJSON:
		return OutputFormat(formatFlag)
	default:
		// Invalid or empty format, use the default
		return OutputText
	}
}

// Printer renders pass results in one output format. Event lines are
// produced by the Reporter attached to the registry; Printer handles what
// is shown once a pass ends.
type Printer struct {
	format   OutputFormat
	w        io.Writer
	reporter *Reporter
}

// NewPrinter creates a printer. The reporter supplies color and quiet settings
// and is also attached for event lines unless the format is summary or json.
func NewPrinter(w io.Writer, format OutputFormat, reporter *Reporter) *Printer {
	return &Printer{format: format, w: w, reporter: reporter}
}

// Format returns the output format.
func (p *Printer) Format() OutputFormat {
	return p.format
}

// LiveEvents reports whether event lines should be printed while a pass runs.
func (p *Printer) LiveEvents() bool {
	return p.format == OutputText || p.format == OutputFull
}

// Print renders a finished pass.
func (p *Printer) Print(result *build.PassResult, passErr error) error {
	switch p.format {
	case OutputJSON:
		return WriteJSON(p.w, result, passErr)
	case OutputSummary:
		p.printErrors(result)
		p.reporter.PrintSummary(result, passErr)
		PrintStatistics(p.w, result, p.reporter.UseColors())
	case OutputFull:
		p.reporter.PrintSummary(result, passErr)
		PrintStatistics(p.w, result, p.reporter.UseColors())
	default:
		p.reporter.PrintSummary(result, passErr)
	}
	return nil
}

// printErrors shows failures that would otherwise be invisible without live events.
func (p *Printer) printErrors(result *build.PassResult) {
	if result == nil {
		return
	}
	for _, f := range result.Failures() {
		if f.Err == nil {
			continue
		}
		p.reporter.errorLine(f.Err, jobOf(f))
	}
}

// PrintStatistics prints a per-status breakdown of a pass.
func PrintStatistics(w io.Writer, result *build.PassResult, useColors bool) {
	if result == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderStyle(StyleCyan, "Build Statistics:", useColors))
	fmt.Fprintf(w, "  Templates:         %d\n", len(result.Outcomes))
	fmt.Fprintf(w, "  Written:           %d\n", result.Count(build.StatusWritten))
	fmt.Fprintf(w, "  Up to date:        %d\n", result.Count(build.StatusUpToDate))
	fmt.Fprintf(w, "  Failed:            %d\n", result.Count(build.StatusFailed))
	if n := result.Count(build.StatusSkipped); n > 0 {
		fmt.Fprintf(w, "  Skipped:           %d\n", n)
	}
	fmt.Fprintf(w, "  Deleted outputs:   %d\n", len(result.Deleted))
	fmt.Fprintf(w, "  Duration:          %s\n", result.Duration.Round(durationPrecision))

	reasons := map[string]int{}
	var order []string
	for _, o := range result.Outcomes {
		if o.Status != build.StatusWritten || o.Reason == "" {
			continue
		}
		if reasons[o.Reason] == 0 {
			order = append(order, o.Reason)
		}
		reasons[o.Reason]++
	}
	if len(order) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderStyle(StyleCyan, "Rebuild Reasons:", useColors))
	for _, reason := range order {
		fmt.Fprintf(w, "  %-26s %d\n", reason+":", reasons[reason])
	}
}
