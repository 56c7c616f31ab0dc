package freshness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yacobolo/stylebuild/internal/source"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setMTime(t *testing.T, path string, mt time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func load(t *testing.T, r *source.Resolver, id, path string) *source.Unit {
	t.Helper()
	u, err := r.Load(id, path)
	require.NoError(t, err)
	return u
}

func TestClosureOrderAndDedup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "screen.scss"), `@import "layout", "colors";`)
	writeFile(t, filepath.Join(dir, "_layout.scss"), `@import "colors";`)
	writeFile(t, filepath.Join(dir, "_colors.scss"), `$c: red;`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	g := NewGraph(r)
	root := load(t, r, "screen", filepath.Join(dir, "screen.scss"))

	deps, err := g.Closure(root)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "colors", deps[0].ID)
	assert.Equal(t, "layout", deps[1].ID)

	ids, err := g.Dependencies(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"colors", "layout"}, ids)

	imports, err := g.ImportMap(root)
	require.NoError(t, err)
	assert.Len(t, imports, 2)
	assert.Contains(t, imports, "colors")
}

func TestClosureCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), `@import "b";`)
	writeFile(t, filepath.Join(dir, "b.scss"), `@import "a";`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	g := NewGraph(r)
	root := load(t, r, "a", filepath.Join(dir, "a.scss"))

	_, err := g.Closure(root)
	var cyc *CyclicImportError
	require.True(t, errors.As(err, &cyc), "got %v", err)
	assert.Equal(t, []string{"a", "b", "a"}, cyc.Cycle)
	assert.Equal(t, "cyclic import: a -> b -> a", cyc.Error())
}

func TestClosureSelfImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), `@import "a";`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	root := load(t, r, "a", filepath.Join(dir, "a.scss"))

	_, err := NewGraph(r).Closure(root)
	var cyc *CyclicImportError
	assert.ErrorAs(t, err, &cyc)
}

func TestClosureMissingImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), `@import "nope";`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	root := load(t, r, "a", filepath.Join(dir, "a.scss"))

	_, err := NewGraph(r).Closure(root)
	var nf *source.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.ID)
	assert.Contains(t, err.Error(), `a imports "nope"`)
}

func TestClosureReportsCycleBehindMissingImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), `@import "nope"; @import "b";`)
	writeFile(t, filepath.Join(dir, "_b.scss"), `@import "a";`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	root := load(t, r, "a", filepath.Join(dir, "a.scss"))

	_, err := NewGraph(r).Closure(root)
	var cyc *CyclicImportError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "a"}, cyc.Cycle)
}

func TestClosureKeepsFirstMissingImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.scss"), `@import "first", "colors", "second";`)
	writeFile(t, filepath.Join(dir, "_colors.scss"), `$c: red;`)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)
	g := NewGraph(r)
	root := load(t, r, "a", filepath.Join(dir, "a.scss"))

	_, err := g.Closure(root)
	var nf *source.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "first", nf.ID)

	// imports after the missing one were still resolved
	_, ok := g.Imported("colors")
	assert.True(t, ok)
}

// compiled simulates a successful build of root and returns its target.
func compiled(t *testing.T, c *Checker, root *source.Unit, out string, mt time.Time) *OutputTarget {
	t.Helper()
	writeFile(t, out, "a{}")
	setMTime(t, out, mt)
	v, err := c.Check(root, nil)
	require.NoError(t, err)
	return &OutputTarget{
		TemplateID:   root.ID,
		OutputPath:   out,
		ModTime:      mt,
		ContentHash:  HashContent("a{}"),
		SourceDigest: v.Digest,
	}
}

func TestCheckVerdicts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "screen.scss")
	dep := filepath.Join(dir, "_colors.scss")
	out := filepath.Join(dir, "out", "screen.css")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeFile(t, src, `@import "colors"; a { color: $c; }`)
	writeFile(t, dep, `$c: red;`)
	setMTime(t, src, base)
	setMTime(t, dep, base)

	r := source.NewResolver([]string{dir}, nil, syntax.DialectSCSS)

	t.Run("no target", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, false)
		v, err := c.Check(load(t, r, "screen", src), nil)
		require.NoError(t, err)
		assert.True(t, v.Stale)
		assert.Equal(t, ReasonNoTarget, v.Reason)
	})

	t.Run("up to date", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, false)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))

		stale, err := c.IsStale(root, target)
		require.NoError(t, err)
		assert.False(t, stale)
	})

	t.Run("import newer", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyMTime, false)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))

		setMTime(t, dep, base.Add(2*time.Minute))
		defer setMTime(t, dep, base)

		c = NewChecker(NewGraph(r), PolicyMTime, false)
		v, err := c.Check(load(t, r, "screen", src), target)
		require.NoError(t, err)
		assert.True(t, v.Stale)
		assert.Equal(t, ReasonSourceNewer, v.Reason)
	})

	t.Run("content changed with identical mtime", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, false)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))

		writeFile(t, dep, `$c: blue;`)
		setMTime(t, dep, base)
		defer func() {
			writeFile(t, dep, `$c: red;`)
			setMTime(t, dep, base)
		}()

		hashed := NewChecker(NewGraph(r), PolicyHash, false)
		v, err := hashed.Check(load(t, r, "screen", src), target)
		require.NoError(t, err)
		assert.True(t, v.Stale)
		assert.Equal(t, ReasonContentChanged, v.Reason)

		mtimeOnly := NewChecker(NewGraph(r), PolicyMTime, false)
		stale, err := mtimeOnly.IsStale(load(t, r, "screen", src), target)
		require.NoError(t, err)
		assert.False(t, stale)
	})

	t.Run("output deleted", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, false)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))
		require.NoError(t, os.Remove(out))

		v, err := c.Check(root, target)
		require.NoError(t, err)
		assert.Equal(t, ReasonOutputMissing, v.Reason)
	})

	t.Run("output touched", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, false)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))
		setMTime(t, out, base.Add(3*time.Minute))

		v, err := c.Check(root, target)
		require.NoError(t, err)
		assert.Equal(t, ReasonOutputChanged, v.Reason)
	})

	t.Run("always update", func(t *testing.T) {
		c := NewChecker(NewGraph(r), PolicyHash, true)
		root := load(t, r, "screen", src)
		target := compiled(t, c, root, out, base.Add(time.Minute))

		v, err := c.Check(root, target)
		require.NoError(t, err)
		assert.Equal(t, ReasonAlwaysUpdate, v.Reason)
	})
}

func TestDigestIsOrderIndependent(t *testing.T) {
	root := &source.Unit{ID: "root", Content: "x"}
	a := &source.Unit{ID: "a", Content: "1"}
	b := &source.Unit{ID: "b", Content: "2"}

	assert.Equal(t, Digest(root, []*source.Unit{a, b}), Digest(root, []*source.Unit{b, a}))
	assert.NotEqual(t, Digest(root, []*source.Unit{a}), Digest(root, []*source.Unit{b}))
	assert.Len(t, HashContent("body{}"), 16)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyHash, p)

	p, err = ParsePolicy("MTIME")
	require.NoError(t, err)
	assert.Equal(t, PolicyMTime, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	mt := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	assert.Empty(t, s.All())

	s.Put(OutputTarget{TemplateID: "b", OutputPath: "out/b.css", ModTime: mt, SourceDigest: "2"})
	s.Put(OutputTarget{TemplateID: "a", OutputPath: "out/a.css", ModTime: mt, SourceDigest: "1"})
	require.NoError(t, s.Save())
	assert.FileExists(t, s.Path())

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	all := reopened.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].TemplateID)
	assert.True(t, all[1].ModTime.Equal(mt))

	reopened.Delete("a")
	_, ok := reopened.Get("a")
	assert.False(t, ok)
}

func TestFileStoreDiscardsCorruptCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CacheFileName), "{not json")

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	assert.Empty(t, s.All())
}
