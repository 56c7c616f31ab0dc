// Package source maps template identifiers to files on disk and discovers the
// templates that make up a build.
package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yacobolo/stylebuild/internal/syntax"
)

// DefaultExtensions are tried in order when resolving an id without extension.
var DefaultExtensions = []string{".scss", ".css"}

// Unit is a loaded template: its content and the ids it imports.
type Unit struct {
	ID      string
	Path    string
	Content string
	Imports []string
	ModTime time.Time
}

// Resolver resolves template ids against an ordered list of search paths.
// Resolution reads files but never writes or caches.
type Resolver struct {
	searchPaths []string
	extensions  []string
	dialect     syntax.Dialect
}

// NewResolver creates a resolver. An empty extensions list means DefaultExtensions.
func NewResolver(searchPaths, extensions []string, dialect syntax.Dialect) *Resolver {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Resolver{
		searchPaths: append([]string(nil), searchPaths...),
		extensions:  append([]string(nil), extensions...),
		dialect:     dialect,
	}
}

// SearchPaths returns the configured search paths in resolution order.
func (r *Resolver) SearchPaths() []string {
	return append([]string(nil), r.searchPaths...)
}

// Extensions returns the template extensions in priority order.
func (r *Resolver) Extensions() []string {
	return append([]string(nil), r.extensions...)
}

// Resolve finds the first file matching id across the search paths and loads it.
func (r *Resolver) Resolve(id string) (*Unit, error) {
	var searched []string
	for _, dir := range r.searchPaths {
		for _, candidate := range r.candidates(id) {
			path := filepath.Join(dir, candidate)
			searched = append(searched, path)

			info, err := os.Stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, &IOError{Op: "stat", Path: path, Err: err}
			}
			if info.IsDir() {
				continue
			}
			return r.Load(id, path)
		}
	}
	return nil, &NotFoundError{ID: id, Searched: searched}
}

// candidates lists the relative file names tried for id, in order: the id as
// written when it already has a known extension, then id+ext, then the
// underscore-prefixed partial form for each extension.
func (r *Resolver) candidates(id string) []string {
	id = filepath.FromSlash(id)
	dir, base := filepath.Split(id)

	var names []string
	if r.hasKnownExtension(id) {
		names = append(names, id)
		if !strings.HasPrefix(base, "_") {
			names = append(names, filepath.Join(dir, "_"+base))
		}
		return names
	}
	for _, ext := range r.extensions {
		names = append(names, id+ext)
	}
	if !strings.HasPrefix(base, "_") {
		for _, ext := range r.extensions {
			names = append(names, filepath.Join(dir, "_"+base+ext))
		}
	}
	return names
}

func (r *Resolver) hasKnownExtension(id string) bool {
	ext := filepath.Ext(id)
	for _, e := range r.extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Load reads the template at path and scans its imports. A missing file is a
// NotFoundError; any other read failure is an IOError.
func (r *Resolver) Load(id, path string) (*Unit, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{ID: id, Searched: []string{path}}
		}
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}

	// #nosec G304 - path comes from configured template locations
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{ID: id, Searched: []string{path}}
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	unit := &Unit{
		ID:      id,
		Path:    path,
		Content: string(content),
		ModTime: info.ModTime(),
	}
	for _, imp := range syntax.Imports(syntax.Tokenize(unit.Content, r.dialect)) {
		if !imp.Plain {
			unit.Imports = append(unit.Imports, imp.Target)
		}
	}
	return unit, nil
}
