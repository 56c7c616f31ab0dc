package compiler

import (
	"fmt"

	"github.com/yacobolo/stylebuild/internal/syntax"
)

// Error is a compilation failure with the position that caused it.
type Error struct {
	TemplateID string // template being compiled
	File       string // file the error is in; an import of TemplateID or the template itself
	Line       int    // 1-based, 0 when unknown
	Column     int    // 1-based, 0 when unknown
	Message    string
	Dialect    syntax.Dialect
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}
