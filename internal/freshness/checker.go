package freshness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/yacobolo/stylebuild/internal/source"
)

// Policy selects how staleness is detected.
type Policy string

const (
	// PolicyMTime compares modification times only.
	PolicyMTime Policy = "mtime"
	// PolicyHash also compares a digest of all sources, which catches edits
	// that leave timestamps unchanged (coarse filesystems, restored files).
	PolicyHash Policy = "hash"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyHash):
		return PolicyHash, nil
	case string(PolicyMTime):
		return PolicyMTime, nil
	}
	return "", fmt.Errorf("unknown staleness policy %q (want mtime or hash)", s)
}

// Reasons reported in a Verdict.
const (
	ReasonUpToDate       = "up to date"
	ReasonAlwaysUpdate   = "always update"
	ReasonNoTarget       = "no previous output"
	ReasonOutputMissing  = "output missing"
	ReasonOutputChanged  = "output changed on disk"
	ReasonSourceNewer    = "source newer than output"
	ReasonContentChanged = "source content changed"
)

// Verdict is the result of a staleness check.
type Verdict struct {
	Stale   bool
	Reason  string
	Digest  string    // digest of the template and its imports
	ModTime time.Time // newest modification time among those sources
}

// Checker compares templates against their recorded outputs.
type Checker struct {
	graph        *Graph
	policy       Policy
	alwaysUpdate bool
}

// NewChecker creates a checker over the pass graph.
func NewChecker(graph *Graph, policy Policy, alwaysUpdate bool) *Checker {
	if policy == "" {
		policy = PolicyHash
	}
	return &Checker{graph: graph, policy: policy, alwaysUpdate: alwaysUpdate}
}

// IsStale reports whether root has to be recompiled.
func (c *Checker) IsStale(root *source.Unit, target *OutputTarget) (bool, error) {
	v, err := c.Check(root, target)
	return v.Stale, err
}

// Check evaluates root against target (nil when there is no previous output).
func (c *Checker) Check(root *source.Unit, target *OutputTarget) (Verdict, error) {
	deps, err := c.graph.Closure(root)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{
		Digest:  Digest(root, deps),
		ModTime: newest(root, deps),
	}

	switch {
	case c.alwaysUpdate:
		v.Stale, v.Reason = true, ReasonAlwaysUpdate
		return v, nil
	case target == nil:
		v.Stale, v.Reason = true, ReasonNoTarget
		return v, nil
	}

	info, err := os.Stat(target.OutputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.Stale, v.Reason = true, ReasonOutputMissing
			return v, nil
		}
		return v, &source.IOError{Op: "stat", Path: target.OutputPath, Err: err}
	}
	if !info.ModTime().Equal(target.ModTime) {
		v.Stale, v.Reason = true, ReasonOutputChanged
		return v, nil
	}

	if v.ModTime.After(target.ModTime) {
		v.Stale, v.Reason = true, ReasonSourceNewer
		return v, nil
	}
	if c.policy == PolicyHash && v.Digest != target.SourceDigest {
		v.Stale, v.Reason = true, ReasonContentChanged
		return v, nil
	}

	v.Reason = ReasonUpToDate
	return v, nil
}

// Digest hashes the ids and contents of root and its imports in a stable order.
func Digest(root *source.Unit, deps []*source.Unit) string {
	sorted := append([]*source.Unit(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := xxhash.New()
	for _, u := range append([]*source.Unit{root}, sorted...) {
		_, _ = h.WriteString(u.ID)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(u.Content)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashContent returns the digest of compiled output.
func HashContent(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

func newest(root *source.Unit, deps []*source.Unit) time.Time {
	t := root.ModTime
	for _, d := range deps {
		if d.ModTime.After(t) {
			t = d.ModTime
		}
	}
	return t
}
