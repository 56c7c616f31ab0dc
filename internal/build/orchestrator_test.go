package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yacobolo/stylebuild/internal/callbacks"
	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
	"github.com/yacobolo/stylebuild/internal/syntax"
)

// countingCompiler wraps the real compiler, records calls and fails on demand.
type countingCompiler struct {
	inner *compiler.Compiler
	calls []string
	fail  map[string]error
}

func (c *countingCompiler) Compile(src compiler.Source, imports map[string]compiler.Source, opts compiler.Options) (string, error) {
	c.calls = append(c.calls, src.ID)
	if err, ok := c.fail[src.ID]; ok {
		return "", err
	}
	return c.inner.Compile(src, imports, opts)
}

type recorder struct {
	events []string
}

func (r *recorder) add(kind callbacks.Kind, detail string) {
	r.events = append(r.events, string(kind)+" "+detail)
}

// perTemplate drops the batch event, which fires on every pass.
func (r *recorder) perTemplate() []string {
	var out []string
	for _, e := range r.events {
		if !strings.HasPrefix(e, string(callbacks.UpdatingStylesheets)+" ") {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(kind callbacks.Kind) int {
	n := 0
	for _, e := range r.events {
		if strings.HasPrefix(e, string(kind)+" ") {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.events = nil
}

func record(t *testing.T, reg *callbacks.Registry) *recorder {
	t.Helper()
	rec := &recorder{}
	require.NoError(t, reg.OnUpdatingStylesheets(func(batch []callbacks.Job) {
		ids := make([]string, len(batch))
		for i, j := range batch {
			ids[i] = j.TemplateID
		}
		rec.add(callbacks.UpdatingStylesheets, strings.Join(ids, ","))
	}))
	require.NoError(t, reg.OnUpdatingStylesheet(func(j callbacks.Job) { rec.add(callbacks.UpdatingStylesheet, j.TemplateID) }))
	require.NoError(t, reg.OnNotUpdatingStylesheet(func(j callbacks.Job) { rec.add(callbacks.NotUpdatingStylesheet, j.TemplateID) }))
	require.NoError(t, reg.OnCompilationError(func(_ error, j callbacks.Job) { rec.add(callbacks.CompilationError, j.TemplateID) }))
	require.NoError(t, reg.OnCreatingDirectory(func(dir string) { rec.add(callbacks.CreatingDirectory, dir) }))
	require.NoError(t, reg.OnDeletingCSS(func(id, _ string) { rec.add(callbacks.DeletingCSS, id) }))
	return rec
}

type fixture struct {
	src, out string
	compiler *countingCompiler
	registry *callbacks.Registry
	rec      *recorder
	store    freshness.Store
	orch     *Orchestrator
}

func newFixture(t *testing.T, files map[string]string, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		src:      filepath.Join(dir, "src"),
		out:      filepath.Join(dir, "out"),
		compiler: &countingCompiler{inner: compiler.New(), fail: map[string]error{}},
		registry: callbacks.NewRegistry(),
		store:    freshness.NewMemoryStore(),
	}
	require.NoError(t, os.MkdirAll(f.src, 0o755))
	for name, content := range files {
		f.write(t, name, content)
	}
	f.rec = record(t, f.registry)
	f.orch = New(source.NewResolver([]string{f.src}, nil, syntax.DialectSCSS), f.compiler, f.store, f.registry, opts, nil)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.src, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) set(t *testing.T) source.TemplateSet {
	t.Helper()
	set, err := source.Discover([]source.Location{{SourceDir: f.src, OutputDir: f.out}}, nil)
	require.NoError(t, err)
	return set
}

func (f *fixture) run(t *testing.T, set source.TemplateSet) *PassResult {
	t.Helper()
	result, err := f.orch.Run(context.Background(), set)
	require.NoError(t, err)
	return result
}

func statuses(r *PassResult) []Status {
	out := make([]Status, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestFirstPassWritesSecondPassIsUpToDate(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{})
	set := f.set(t)

	result := f.run(t, set)
	assert.Equal(t, []Status{StatusWritten}, statuses(result))
	assert.Equal(t, []string{
		"updating_stylesheets screen",
		"updating_stylesheet screen",
		"creating_directory " + f.out,
	}, f.rec.events)

	css, err := os.ReadFile(filepath.Join(f.out, "screen.css"))
	require.NoError(t, err)
	assert.Equal(t, ".a {\n  color: red;\n}\n", string(css))

	f.rec.reset()
	result = f.run(t, set)
	assert.Equal(t, []Status{StatusUpToDate}, statuses(result))
	assert.Equal(t, []string{"not_updating_stylesheet screen"}, f.rec.perTemplate())
	assert.Equal(t, []string{"screen"}, f.compiler.calls, "second pass must not compile")
}

func TestHashPolicyDetectsChangeWithSameMTime(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{Policy: freshness.PolicyHash})
	set := f.set(t)
	f.run(t, set)

	path := filepath.Join(f.src, "screen.scss")
	info, err := os.Stat(path)
	require.NoError(t, err)
	f.write(t, "screen.scss", ".a { color: blu; }")
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	result := f.run(t, set)
	assert.Equal(t, []Status{StatusWritten}, statuses(result))
	assert.Equal(t, freshness.ReasonContentChanged, result.Outcomes[0].Reason)

	css, err := os.ReadFile(filepath.Join(f.out, "screen.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "blu")
}

func TestMTimePolicyIgnoresChangeWithSameMTime(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{Policy: freshness.PolicyMTime})
	set := f.set(t)
	f.run(t, set)

	path := filepath.Join(f.src, "screen.scss")
	info, err := os.Stat(path)
	require.NoError(t, err)
	f.write(t, "screen.scss", ".a { color: blu; }")
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	result := f.run(t, set)
	assert.Equal(t, []Status{StatusUpToDate}, statuses(result))
}

func TestImportChangeMakesTemplateStale(t *testing.T) {
	f := newFixture(t, map[string]string{
		"_colors.scss": "$c: red;",
		"screen.scss":  "@import \"colors\";\n.a { color: $c; }",
		"print.scss":   ".p { color: black; }",
	}, Options{})
	set := f.set(t)
	f.run(t, set)

	f.write(t, "_colors.scss", "$c: green;")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.src, "_colors.scss"), later, later))

	f.rec.reset()
	result := f.run(t, set)
	screen, ok := result.Outcome("screen")
	require.True(t, ok)
	assert.Equal(t, StatusWritten, screen.Status)
	printOutcome, ok := result.Outcome("print")
	require.True(t, ok)
	assert.Equal(t, StatusUpToDate, printOutcome.Status)

	css, err := os.ReadFile(filepath.Join(f.out, "screen.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "color: green;")
}

func TestCyclicImportAbortsBeforeCompiling(t *testing.T) {
	f := newFixture(t, map[string]string{
		"_a.scss":    `@import "b";`,
		"_b.scss":    `@import "a";`,
		"main.scss":  `@import "a";`,
		"other.scss": ".o { color: red; }",
		"zzz.scss":   ".z { color: red; }",
	}, Options{})

	result, err := f.orch.Run(context.Background(), f.set(t))
	require.Error(t, err)
	assert.Nil(t, result)

	var cyclic *freshness.CyclicImportError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"a", "b", "a"}, cyclic.Cycle)
	assert.Empty(t, f.compiler.calls)
	assert.Empty(t, f.rec.events)
}

func TestCycleBehindMissingImportAbortsPass(t *testing.T) {
	f := newFixture(t, map[string]string{
		"_a.scss":   `@import "nope"; @import "b";`,
		"_b.scss":   `@import "a";`,
		"main.scss": `@import "a";`,
		"ok.scss":   ".ok { color: red; }",
	}, Options{})

	result, err := f.orch.Run(context.Background(), f.set(t))
	assert.Nil(t, result)

	var cyclic *freshness.CyclicImportError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"a", "b", "a"}, cyclic.Cycle)
	assert.Empty(t, f.compiler.calls)
	assert.Empty(t, f.rec.events)
}

func TestPartialFailureContinues(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.scss": ".a { color: red; }",
		"b.scss": ".b { color: red; }",
	}, Options{})
	f.compiler.fail["a"] = &compiler.Error{TemplateID: "a", File: "a.scss", Line: 1, Column: 1, Message: "boom"}

	result := f.run(t, f.set(t))
	assert.Equal(t, []Status{StatusFailed, StatusWritten}, statuses(result))
	assert.Equal(t, 1, f.rec.count(callbacks.CompilationError))
	assert.True(t, result.HasFailures())

	var cerr *compiler.Error
	require.True(t, errors.As(result.Outcomes[0].Err, &cerr))
	assert.Equal(t, "boom", cerr.Message)

	assert.FileExists(t, filepath.Join(f.out, "b.css"))
	assert.NoFileExists(t, filepath.Join(f.out, "a.css"))
}

func TestAbortOnError(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.scss": ".a { color: $missing; }",
		"b.scss": ".b { color: red; }",
	}, Options{AbortOnError: true})

	result, err := f.orch.Run(context.Background(), f.set(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	require.NotNil(t, result)
	assert.Equal(t, []Status{StatusFailed, StatusSkipped}, statuses(result))
	assert.Equal(t, []string{"a"}, f.compiler.calls)
}

func TestRemovedTemplateDeletesOutput(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.scss": ".a { color: red; }",
		"b.scss": ".b { color: red; }",
	}, Options{})
	set := f.set(t)
	f.run(t, set)
	require.FileExists(t, filepath.Join(f.out, "b.css"))

	f.rec.reset()
	result := f.run(t, set[:1])
	assert.Equal(t, 1, f.rec.count(callbacks.DeletingCSS))
	assert.Contains(t, f.rec.events, "deleting_css b")
	assert.Equal(t, []Deletion{{TemplateID: "b", OutputPath: filepath.Join(f.out, "b.css")}}, result.Deleted)
	assert.NoFileExists(t, filepath.Join(f.out, "b.css"))
	assert.FileExists(t, filepath.Join(f.out, "a.css"))

	_, tracked := f.store.Get("b")
	assert.False(t, tracked)

	f.rec.reset()
	result = f.run(t, set[:1])
	assert.Zero(t, f.rec.count(callbacks.DeletingCSS))
	assert.Empty(t, result.Deleted)
}

func TestMovedOutputOfFailingTemplateIsDeletedOnce(t *testing.T) {
	f := newFixture(t, map[string]string{"a.scss": ".a { color: red; }"}, Options{})
	set := f.set(t)
	f.run(t, set)
	oldOutput := filepath.Join(f.out, "a.css")
	require.FileExists(t, oldOutput)

	moved := set.Clone()
	moved[0].OutputPath = filepath.Join(f.out, "moved", "a.css")
	f.compiler.fail["a"] = &compiler.Error{TemplateID: "a", File: "a.scss", Line: 1, Column: 1, Message: "boom"}

	f.rec.reset()
	result := f.run(t, moved)
	assert.Equal(t, []Status{StatusFailed}, statuses(result))
	assert.Equal(t, []Deletion{{TemplateID: "a", OutputPath: oldOutput}}, result.Deleted)
	assert.NoFileExists(t, oldOutput)

	for range 2 {
		result = f.run(t, moved)
		assert.Equal(t, []Status{StatusFailed}, statuses(result))
		assert.Empty(t, result.Deleted)
	}
	assert.Equal(t, 1, f.rec.count(callbacks.DeletingCSS))
}

func TestCreatingDirectoryOncePerDirectory(t *testing.T) {
	f := newFixture(t, map[string]string{
		"admin/dashboard.scss": ".d { color: red; }",
		"admin/users.scss":     ".u { color: red; }",
		"screen.scss":          ".s { color: red; }",
	}, Options{})

	f.run(t, f.set(t))
	var dirs []string
	for _, e := range f.rec.events {
		if d, ok := strings.CutPrefix(e, "creating_directory "); ok {
			dirs = append(dirs, d)
		}
	}
	assert.Equal(t, []string{f.out, filepath.Join(f.out, "admin")}, dirs)
}

func TestMissingImportFails(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": `@import "nope";`}, Options{})

	result := f.run(t, f.set(t))
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusFailed, result.Outcomes[0].Status)

	var notFound *source.NotFoundError
	require.True(t, errors.As(result.Outcomes[0].Err, &notFound))
	assert.Equal(t, "nope", notFound.ID)
	assert.Equal(t, 1, f.rec.count(callbacks.CompilationError))
	assert.Empty(t, f.compiler.calls)
}

func TestErrorDisplayCSS(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: $nope; }"}, Options{ErrorDisplay: ErrorDisplayCSS})
	set := f.set(t)

	result := f.run(t, set)
	assert.Equal(t, []Status{StatusFailed}, statuses(result))
	css, err := os.ReadFile(filepath.Join(f.out, "screen.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "body::before")
	assert.Contains(t, string(css), "undefined variable: $nope")

	// the error stylesheet never counts as up to date
	result = f.run(t, set)
	assert.Equal(t, []Status{StatusFailed}, statuses(result))
	assert.Len(t, f.compiler.calls, 2)

	// and is removed with its template
	result = f.run(t, nil)
	assert.Len(t, result.Deleted, 1)
	assert.NoFileExists(t, filepath.Join(f.out, "screen.css"))
}

func TestOutputRemovedExternallyIsRebuilt(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{})
	set := f.set(t)
	f.run(t, set)

	require.NoError(t, os.Remove(filepath.Join(f.out, "screen.css")))
	result := f.run(t, set)
	assert.Equal(t, []Status{StatusWritten}, statuses(result))
	assert.Equal(t, freshness.ReasonOutputMissing, result.Outcomes[0].Reason)
	assert.FileExists(t, filepath.Join(f.out, "screen.css"))
}

func TestAlwaysUpdate(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{AlwaysUpdate: true})
	set := f.set(t)
	f.run(t, set)
	f.run(t, set)
	assert.Len(t, f.compiler.calls, 2)
}

func TestIOErrors(t *testing.T) {
	t.Run("per template by default", func(t *testing.T) {
		f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{})
		require.NoError(t, os.WriteFile(f.out, []byte("not a directory"), 0o644))

		result := f.run(t, f.set(t))
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, StatusFailed, result.Outcomes[0].Status)

		var ioErr *IOError
		assert.True(t, errors.As(result.Outcomes[0].Err, &ioErr))
		assert.Equal(t, 1, f.rec.count(callbacks.CompilationError))
	})

	t.Run("fatal when configured", func(t *testing.T) {
		f := newFixture(t, map[string]string{
			"a.scss": ".a { color: red; }",
			"b.scss": ".b { color: red; }",
		}, Options{IOErrorsFatal: true})
		require.NoError(t, os.WriteFile(f.out, []byte("not a directory"), 0o644))

		result, err := f.orch.Run(context.Background(), f.set(t))
		require.Error(t, err)
		var ioErr *IOError
		assert.True(t, errors.As(err, &ioErr))
		require.NotNil(t, result)
		assert.Equal(t, []Status{StatusFailed, StatusSkipped}, statuses(result))
		assert.Equal(t, []string{"a"}, f.compiler.calls)
	})
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	out := filepath.Join(dir, "out")
	cache := filepath.Join(dir, ".cache")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "screen.scss"), []byte(".a { color: red; }"), 0o644))

	set, err := source.Discover([]source.Location{{SourceDir: src, OutputDir: out}}, nil)
	require.NoError(t, err)

	newOrch := func() (*Orchestrator, *countingCompiler) {
		store, err := freshness.OpenFileStore(cache)
		require.NoError(t, err)
		c := &countingCompiler{inner: compiler.New()}
		return New(source.NewResolver([]string{src}, nil, syntax.DialectSCSS), c, store, nil, Options{}, nil), c
	}

	first, c1 := newOrch()
	_, err = first.Run(context.Background(), set)
	require.NoError(t, err)
	assert.Len(t, c1.calls, 1)

	second, c2 := newOrch()
	result, err := second.Run(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusUpToDate}, statuses(result))
	assert.Empty(t, c2.calls)
}

func TestCancelledContextSkipsRemaining(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.scss": ".a { color: red; }",
		"b.scss": ".b { color: red; }",
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.registry.OnUpdatingStylesheet(func(callbacks.Job) { cancel() }))

	result, err := f.orch.Run(ctx, f.set(t))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, []Status{StatusWritten, StatusSkipped}, statuses(result))
}

func TestListenerPanicPropagates(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{})
	require.NoError(t, f.registry.OnUpdatingStylesheet(func(callbacks.Job) { panic("listener failed") }))

	assert.PanicsWithValue(t, "listener failed", func() {
		_, _ = f.orch.Run(context.Background(), f.set(t))
	})
}

func TestRegistryFrozenAfterFirstPass(t *testing.T) {
	f := newFixture(t, map[string]string{"screen.scss": ".a { color: red; }"}, Options{})
	f.run(t, f.set(t))

	err := f.registry.OnUpdatingStylesheet(func(callbacks.Job) {})
	assert.ErrorIs(t, err, callbacks.ErrRegistryFrozen)
}

func TestParseErrorDisplay(t *testing.T) {
	d, err := ParseErrorDisplay("")
	require.NoError(t, err)
	assert.Equal(t, ErrorDisplayNone, d)

	d, err = ParseErrorDisplay("CSS")
	require.NoError(t, err)
	assert.Equal(t, ErrorDisplayCSS, d)

	_, err = ParseErrorDisplay("html")
	assert.Error(t, err)
}
