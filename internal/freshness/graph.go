// Package freshness decides which compiled stylesheets are stale. It owns the
// per-pass import graph and the persistent record of previous outputs.
package freshness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yacobolo/stylebuild/internal/source"
)

// CyclicImportError reports an import cycle. It is fatal for a whole pass.
type CyclicImportError struct {
	Cycle []string // ids along the cycle, first and last are the same template
}

func (e *CyclicImportError) Error() string {
	return "cyclic import: " + strings.Join(e.Cycle, " -> ")
}

// Resolver loads templates by id.
type Resolver interface {
	Resolve(id string) (*source.Unit, error)
}

// Graph is the import graph of one pass. Units are resolved lazily and
// memoised; a Graph must not outlive the pass it was created for.
type Graph struct {
	resolver Resolver
	byID     map[string]*source.Unit
	errs     map[string]error
	closures map[string][]*source.Unit // keyed by unit path
}

// NewGraph creates an empty graph backed by resolver.
func NewGraph(resolver Resolver) *Graph {
	return &Graph{
		resolver: resolver,
		byID:     make(map[string]*source.Unit),
		errs:     make(map[string]error),
		closures: make(map[string][]*source.Unit),
	}
}

// resolve returns the memoised unit for id.
func (g *Graph) resolve(id string) (*source.Unit, error) {
	if u, ok := g.byID[id]; ok {
		return u, nil
	}
	if err, ok := g.errs[id]; ok {
		return nil, err
	}
	u, err := g.resolver.Resolve(id)
	if err != nil {
		g.errs[id] = err
		return nil, err
	}
	g.byID[id] = u
	return u, nil
}

// Closure returns every template root transitively imports, dependencies
// before their dependents, each file once. A cycle yields *CyclicImportError;
// otherwise the first unresolvable import yields the resolver's error wrapped
// with the importing template. The walk continues past unresolvable imports
// so that a cycle behind one is still reported.
func (g *Graph) Closure(root *source.Unit) ([]*source.Unit, error) {
	key := unitKey(root)
	if deps, ok := g.closures[key]; ok {
		return deps, nil
	}

	var (
		order   []*source.Unit
		done    = make(map[string]bool)
		onStack = make(map[string]int)
		stack   []string
		missing error
	)

	var visit func(u *source.Unit) error
	visit = func(u *source.Unit) error {
		k := unitKey(u)
		onStack[k] = len(stack)
		stack = append(stack, u.ID)

		for _, id := range u.Imports {
			dep, err := g.resolve(id)
			if err != nil {
				if missing == nil {
					missing = fmt.Errorf("%s imports %q: %w", u.ID, id, err)
				}
				continue
			}
			dk := unitKey(dep)
			if pos, cyclic := onStack[dk]; cyclic {
				cycle := append(append([]string(nil), stack[pos:]...), id)
				return &CyclicImportError{Cycle: cycle}
			}
			if done[dk] {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, k)
		done[k] = true
		if u != root {
			order = append(order, u)
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	if missing != nil {
		return nil, missing
	}
	g.closures[key] = order
	return order, nil
}

// Dependencies returns the sorted ids root transitively imports.
func (g *Graph) Dependencies(root *source.Unit) ([]string, error) {
	deps, err := g.Closure(root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Imported returns the resolved unit for an import id seen while building closures.
func (g *Graph) Imported(id string) (*source.Unit, bool) {
	u, ok := g.byID[id]
	return u, ok
}

func unitKey(u *source.Unit) string {
	if abs, err := filepath.Abs(u.Path); err == nil {
		return abs
	}
	return filepath.Clean(u.Path)
}

// ImportMap returns, for every import id reachable from root, the unit it
// resolves to. It is the lookup table the compiler inlines imports from.
func (g *Graph) ImportMap(root *source.Unit) (map[string]*source.Unit, error) {
	deps, err := g.Closure(root)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*source.Unit)
	for _, u := range append([]*source.Unit{root}, deps...) {
		for _, id := range u.Imports {
			if dep, ok := g.byID[id]; ok {
				m[id] = dep
			}
		}
	}
	return m, nil
}
