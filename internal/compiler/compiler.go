// Package compiler turns a stylesheet template and its resolved imports into
// CSS. Compile is a pure function of its inputs: it never reads or writes
// files and never fires callbacks.
//
// The scss dialect supports // comments, $variables (block scoped, with
// !default), nested rules with & parent references, @media and @supports
// bubbling out of rules, and @import of sources supplied by the caller.
// The css dialect only inlines @import.
package compiler

import (
	"fmt"
	"strings"

	"github.com/yacobolo/stylebuild/internal/syntax"
)

// Style is the output formatting of compiled CSS.
type Style string

// Output styles.
const (
	StyleNested     Style = "nested"
	StyleExpanded   Style = "expanded"
	StyleCompact    Style = "compact"
	StyleCompressed Style = "compressed"
)

// ParseStyle maps a configuration value to a Style.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StyleExpanded, nil
	case StyleNested, StyleExpanded, StyleCompact, StyleCompressed:
		return st, nil
	}
	return "", fmt.Errorf("unknown output style %q (want nested, expanded, compact or compressed)", s)
}

// Options control a single compilation.
type Options struct {
	Style   Style
	Dialect syntax.Dialect
	// LineComments emits /* line N, file */ before each rule (ignored when compressed).
	LineComments bool
}

// Source is a template or import handed to the compiler.
type Source struct {
	ID      string
	Path    string // display path used in errors and line comments
	Content string
}

func (s Source) displayName() string {
	if s.Path != "" {
		return s.Path
	}
	return s.ID
}

// Compiler compiles templates. It holds no state and is safe for concurrent use.
type Compiler struct{}

// New creates a compiler.
func New() *Compiler {
	return &Compiler{}
}

// Compile compiles src. imports maps every import id reachable from src to
// its source. The returned error is always a *Error.
func (c *Compiler) Compile(src Source, imports map[string]Source, opts Options) (string, error) {
	if opts.Style == "" {
		opts.Style = StyleExpanded
	}
	if opts.Dialect == "" {
		opts.Dialect = syntax.DialectSCSS
	}

	ev := newEvaluator(src, imports, opts)
	items, err := ev.run()
	if err != nil {
		return "", err
	}
	return render(items, opts), nil
}
