package source

import (
	"fmt"
	"strings"
)

// NotFoundError reports a template or import with no matching source file.
type NotFoundError struct {
	ID       string
	Searched []string
}

func (e *NotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("template %q not found", e.ID)
	}
	return fmt.Sprintf("template %q not found (searched %s)", e.ID, strings.Join(e.Searched, ", "))
}

// DuplicateTemplateError reports one template id discovered in two locations.
type DuplicateTemplateError struct {
	ID    string
	Paths []string
}

func (e *DuplicateTemplateError) Error() string {
	return fmt.Sprintf("template %q found in more than one location: %s", e.ID, strings.Join(e.Paths, ", "))
}

// IOError wraps a filesystem failure. It is kept distinct from compilation
// errors so callers can treat broken disks differently from broken templates.
type IOError struct {
	Op   string // "read", "write", "mkdir", "remove", "stat"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
