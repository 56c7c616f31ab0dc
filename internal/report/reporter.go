// Package report turns build events and pass results into terminal lines,
// structured logs and JSON.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/callbacks"
	"github.com/yacobolo/stylebuild/internal/compiler"
)

// Reporter prints one line per build event, right-aligned action first:
//
//	  directory  public/css
//	      write  styles/screen.scss
//	      error  styles/print.scss:3:10: undefined variable: $gutter
type Reporter struct {
	mu        sync.Mutex
	w         io.Writer
	useColors bool
	verbose   bool
	quiet     bool
	baseDir   string
}

// Options configures a Reporter.
type Options struct {
	UseColors bool
	// Verbose also prints up-to-date templates.
	Verbose bool
	// Quiet prints errors only.
	Quiet bool
	// BaseDir shortens printed paths; defaults to the working directory.
	BaseDir string
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer, opts Options) *Reporter {
	base := opts.BaseDir
	if base == "" {
		base, _ = os.Getwd()
	}
	return &Reporter{
		w:         w,
		useColors: opts.UseColors,
		verbose:   opts.Verbose,
		quiet:     opts.Quiet,
		baseDir:   base,
	}
}

// Name identifies the reporter as an adapter.
func (r *Reporter) Name() string {
	return "reporter"
}

// Attach registers the reporter's listeners.
func (r *Reporter) Attach(reg *callbacks.Registry) error {
	return errors.Join(
		reg.OnCreatingDirectory(func(dir string) {
			r.action("directory", StyleCyan, r.path(dir))
		}),
		reg.OnUpdatingStylesheet(func(job callbacks.Job) {
			r.action("write", StyleGreen, r.path(job.SourcePath))
		}),
		reg.OnNotUpdatingStylesheet(func(job callbacks.Job) {
			if r.verbose {
				r.action("identical", StyleGray, r.path(job.OutputPath))
			}
		}),
		reg.OnCompilationError(func(err error, job callbacks.Job) {
			r.errorLine(err, job)
		}),
		reg.OnDeletingCSS(func(_ string, output string) {
			r.action("delete", StyleYellow, r.path(output))
		}),
		reg.OnTemplateCreated(func(path string) {
			r.action("created", StyleCyan, r.path(path))
		}),
		reg.OnTemplateModified(func(path string) {
			r.action("changed", StyleCyan, r.path(path))
		}),
		reg.OnTemplateDeleted(func(path string) {
			r.action("removed", StyleCyan, r.path(path))
		}),
	)
}

// UseColors returns whether colors are enabled.
func (r *Reporter) UseColors() bool {
	return r.useColors
}

const (
	actionWidth       = 11
	durationPrecision = time.Millisecond
)

func (r *Reporter) action(label string, style lipgloss.Style, text string) {
	if r.quiet {
		return
	}
	r.println(r.label(label, style) + " " + text)
}

func (r *Reporter) label(label string, style lipgloss.Style) string {
	padded := fmt.Sprintf("%*s", actionWidth, label)
	return RenderStyle(style, padded, r.useColors)
}

func (r *Reporter) errorLine(err error, job callbacks.Job) {
	var cerr *compiler.Error
	msg := err.Error()
	if errors.As(err, &cerr) {
		// compiler errors carry their own location
		msg = fmt.Sprintf("%s: %s", r.location(cerr), cerr.Message)
	} else if !strings.Contains(msg, job.SourcePath) {
		msg = fmt.Sprintf("%s: %s", r.path(job.SourcePath), msg)
	}
	r.println(r.label("error", StyleRed) + " " + msg)
}

func (r *Reporter) location(e *compiler.Error) string {
	file := r.path(e.File)
	if e.Line == 0 {
		return file
	}
	return fmt.Sprintf("%s:%d:%d", file, e.Line, e.Column)
}

func (r *Reporter) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}

// path shortens p relative to the base directory when it lies inside it.
func (r *Reporter) path(p string) string {
	if r.baseDir == "" || !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(r.baseDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// PrintSummary prints the one-line result of a pass, or the error that
// stopped it.
func (r *Reporter) PrintSummary(result *build.PassResult, passErr error) {
	if passErr != nil && result == nil {
		r.println(RenderStyle(StyleRed, "Build failed: ", r.useColors) + passErr.Error())
		return
	}
	if result == nil {
		return
	}

	parts := []string{
		pluralizeCount(result.Count(build.StatusWritten), "stylesheet written", "stylesheets written"),
		fmt.Sprintf("%d up to date", result.Count(build.StatusUpToDate)),
	}
	if n := result.Count(build.StatusFailed); n > 0 {
		parts = append(parts, RenderStyle(StyleRed, pluralizeCount(n, "error", "errors"), r.useColors))
	}
	if n := result.Count(build.StatusSkipped); n > 0 {
		parts = append(parts, RenderStyle(StyleYellow, fmt.Sprintf("%d skipped", n), r.useColors))
	}
	if n := len(result.Deleted); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}

	line := strings.Join(parts, ", ")
	if result.Duration > 0 {
		line += RenderStyle(StyleGray, fmt.Sprintf(" (%s)", result.Duration.Round(durationPrecision)), r.useColors)
	}
	if passErr != nil {
		line += "\n" + RenderStyle(StyleRed, "Build stopped: ", r.useColors) + passErr.Error()
	}
	if r.quiet && passErr == nil && !result.HasFailures() {
		return
	}
	r.println(line)
}

// pluralizeCount returns a formatted string with count and singular/plural form
func pluralizeCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

func jobOf(o build.Outcome) callbacks.Job {
	return callbacks.Job{TemplateID: o.TemplateID, SourcePath: o.SourcePath, OutputPath: o.OutputPath}
}
