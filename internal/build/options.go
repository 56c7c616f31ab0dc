// Package build runs passes over a TemplateSet: it checks every template for
// staleness, compiles and writes the stale ones, removes orphaned outputs and
// reports each step through the callback registry.
package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

// ErrAborted is returned when abort-on-error stopped a pass early.
var ErrAborted = errors.New("build aborted")

// IOError is a filesystem failure during a pass.
type IOError = source.IOError

// ErrorDisplay selects what happens to the output of a failed template.
type ErrorDisplay string

const (
	// ErrorDisplayNone leaves the previous output untouched.
	ErrorDisplayNone ErrorDisplay = "none"
	// ErrorDisplayCSS replaces the output with a stylesheet showing the error.
	ErrorDisplayCSS ErrorDisplay = "css"
)

// ParseErrorDisplay maps a configuration value to an ErrorDisplay.
func ParseErrorDisplay(s string) (ErrorDisplay, error) {
	switch d := ErrorDisplay(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return ErrorDisplayNone, nil
	case ErrorDisplayNone, ErrorDisplayCSS:
		return d, nil
	}
	return "", fmt.Errorf("unknown error display %q (want none or css)", s)
}

// Options is the configuration snapshot of one orchestrator. It is copied on
// construction and never changes while passes run.
type Options struct {
	Style        compiler.Style
	Dialect      syntax.Dialect
	LineComments bool
	ErrorDisplay ErrorDisplay

	// AbortOnError stops the pass at the first failed template; the rest are skipped.
	AbortOnError bool
	// IOErrorsFatal turns per-template filesystem errors into pass errors.
	IOErrorsFatal bool
	// AlwaysUpdate compiles every template regardless of freshness.
	AlwaysUpdate bool
	Policy       freshness.Policy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Style:        compiler.StyleExpanded,
		Dialect:      syntax.DialectSCSS,
		ErrorDisplay: ErrorDisplayNone,
		Policy:       freshness.PolicyHash,
	}
}

// CompilerOptions returns the part of the snapshot the compiler sees.
func (o Options) CompilerOptions() compiler.Options {
	return compiler.Options{
		Style:        o.Style,
		Dialect:      o.Dialect,
		LineComments: o.LineComments,
	}
}
