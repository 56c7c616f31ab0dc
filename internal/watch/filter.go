package watch

import (
	"path/filepath"
	"strings"

	"github.com/yacobolo/stylebuild/internal/source"
)

// Filter decides which changed paths concern the build: files with a
// template extension inside a template location, outside every output
// directory and not ignored by the location's ignore file.
type Filter struct {
	roots      []string // absolute source dirs
	ignores    []source.Ignorer
	outputDirs []string
	extensions []string
}

// NewFilter creates a filter for locations.
func NewFilter(locations []source.Location, extensions []string) *Filter {
	if len(extensions) == 0 {
		extensions = source.DefaultExtensions
	}
	f := &Filter{extensions: extensions}
	for _, loc := range locations {
		src, out := absPath(loc.SourceDir), absPath(loc.OutputDir)
		f.roots = append(f.roots, src)
		f.ignores = append(f.ignores, source.LoadIgnore(loc.SourceDir))
		if out != src {
			f.outputDirs = append(f.outputDirs, out)
		}
	}
	return f
}

// Roots returns the directories to watch.
func (f *Filter) Roots() []string {
	return append([]string(nil), f.roots...)
}

// Match reports whether a change to path may affect a build.
func (f *Filter) Match(path string) bool {
	path = absPath(path)
	if !f.hasExtension(path) || source.Within(path, f.outputDirs) {
		return false
	}
	for i, root := range f.roots {
		if !source.Within(path, []string{root}) {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if ig := f.ignores[i]; ig != nil && ig.MatchesPath(filepath.ToSlash(rel)) {
			return false
		}
		return true
	}
	return false
}

func (f *Filter) hasExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range f.extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
