package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-location ignore file, in .gitignore syntax.
const IgnoreFileName = ".stylebuildignore"

// Location pairs a template directory with the directory its output goes to.
type Location struct {
	SourceDir string
	OutputDir string
}

// ParseLocation parses "src:out". A bare "src" compiles next to the sources.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, fmt.Errorf("empty template location")
	}
	src, out, found := strings.Cut(s, ":")
	if !found {
		return Location{SourceDir: src, OutputDir: src}, nil
	}
	if src == "" || out == "" {
		return Location{}, fmt.Errorf("invalid template location %q: want SRC:OUT", s)
	}
	return Location{SourceDir: src, OutputDir: out}, nil
}

// Template is one entry of a TemplateSet.
type Template struct {
	ID         string
	SourcePath string
	OutputPath string
}

// TemplateSet is the ordered list of templates compiled by one pass.
type TemplateSet []Template

// IDs returns the template ids in set order.
func (s TemplateSet) IDs() []string {
	ids := make([]string, len(s))
	for i, t := range s {
		ids[i] = t.ID
	}
	return ids
}

// Contains reports whether id is part of the set.
func (s TemplateSet) Contains(id string) bool {
	for _, t := range s {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that is safe to hold while the original is modified.
func (s TemplateSet) Clone() TemplateSet {
	return append(TemplateSet(nil), s...)
}

// Ignorer decides whether a path relative to a template location is skipped.
type Ignorer interface {
	MatchesPath(path string) bool
}

// LoadIgnore compiles the ignore file of dir. A missing file yields nil.
func LoadIgnore(dir string) Ignorer {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		return nil
	}
	return gi
}

// Discover builds a TemplateSet from locations. Partials (files whose name
// starts with "_") are only compiled through imports. Templates are ordered by
// location, then by id. When two files of one location share an id, the
// extension listed first wins; the same id in two locations is a
// *DuplicateTemplateError, since ids key the freshness store.
func Discover(locations []Location, extensions []string) (TemplateSet, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	var set TemplateSet
	owner := make(map[string]Template)

	var outputDirs []string
	for _, loc := range locations {
		if filepath.Clean(loc.OutputDir) != filepath.Clean(loc.SourceDir) {
			outputDirs = append(outputDirs, filepath.Clean(loc.OutputDir))
		}
	}

	for _, loc := range locations {
		found, err := discoverLocation(loc, extensions, outputDirs)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			if prev, dup := owner[t.ID]; dup {
				return nil, &DuplicateTemplateError{ID: t.ID, Paths: []string{prev.SourcePath, t.SourcePath}}
			}
			owner[t.ID] = t
			set = append(set, t)
		}
	}

	return set, nil
}

// discoverLocation returns the templates of one location sorted by id.
func discoverLocation(loc Location, extensions, outputDirs []string) ([]Template, error) {
	ig := LoadIgnore(loc.SourceDir)
	byID := make(map[string]Template)

	for _, ext := range extensions {
		matches, err := doublestar.FilepathGlob(filepath.Join(loc.SourceDir, "**", "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", loc.SourceDir, err)
		}

		for _, path := range matches {
			if strings.HasPrefix(filepath.Base(path), "_") || Within(path, outputDirs) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}

			rel, err := filepath.Rel(loc.SourceDir, path)
			if err != nil {
				return nil, fmt.Errorf("relative path of %s: %w", path, err)
			}
			if ig != nil && ig.MatchesPath(filepath.ToSlash(rel)) {
				continue
			}

			id := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
			if _, taken := byID[id]; taken {
				continue
			}
			output := OutputPathFor(loc.OutputDir, id)
			if filepath.Clean(output) == filepath.Clean(path) {
				// a compiled stylesheet sitting next to its source
				continue
			}
			byID[id] = Template{ID: id, SourcePath: path, OutputPath: output}
		}
	}

	found := make([]Template, 0, len(byID))
	for _, t := range byID {
		found = append(found, t)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

// OutputPathFor returns the compiled stylesheet path of id under outputDir.
func OutputPathFor(outputDir, id string) string {
	return filepath.Join(outputDir, filepath.FromSlash(id)+".css")
}

// Within reports whether path lies inside one of dirs.
func Within(path string, dirs []string) bool {
	path = filepath.Clean(path)
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
