package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yacobolo/stylebuild/internal/callbacks"
	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
)

// Compiler turns a template and its imports into CSS.
type Compiler interface {
	Compile(src compiler.Source, imports map[string]compiler.Source, opts compiler.Options) (string, error)
}

// Resolver loads templates and their imports.
type Resolver interface {
	Resolve(id string) (*source.Unit, error)
	Load(id, path string) (*source.Unit, error)
}

// Orchestrator runs build passes. Passes are serialised; a Run call waits for
// the one in progress.
type Orchestrator struct {
	mu       sync.Mutex
	resolver Resolver
	compiler Compiler
	store    freshness.Store
	registry *callbacks.Registry
	opts     Options
	logger   *slog.Logger
}

// New creates an orchestrator. A nil store keeps targets in memory, a nil
// registry has no listeners and a nil logger discards.
func New(resolver Resolver, c Compiler, store freshness.Store, registry *callbacks.Registry, opts Options, logger *slog.Logger) *Orchestrator {
	if store == nil {
		store = freshness.NewMemoryStore()
	}
	if registry == nil {
		registry = callbacks.NewRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	def := DefaultOptions()
	if opts.Style == "" {
		opts.Style = def.Style
	}
	if opts.Dialect == "" {
		opts.Dialect = def.Dialect
	}
	if opts.ErrorDisplay == "" {
		opts.ErrorDisplay = def.ErrorDisplay
	}
	if opts.Policy == "" {
		opts.Policy = def.Policy
	}
	return &Orchestrator{
		resolver: resolver,
		compiler: c,
		store:    store,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the orchestrator's configuration snapshot.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Store returns the target store.
func (o *Orchestrator) Store() freshness.Store {
	return o.store
}

// pass holds the state of one Run call.
type pass struct {
	set     source.TemplateSet
	jobs    []callbacks.Job
	units   []*source.Unit
	errs    []error // per-template resolution errors
	graph   *freshness.Graph
	checker *freshness.Checker
	result  *PassResult
}

// Run performs one pass over set. The returned result lists every template
// in set order even when some failed. The error is non-nil only for failures
// of the pass as a whole: an import cycle, an aborted pass (wrapping
// ErrAborted), a fatal IO error, a failure to persist the store, or
// cancellation of ctx. A listener panic propagates to the caller.
func (o *Orchestrator) Run(ctx context.Context, set source.TemplateSet) (*PassResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	o.registry.Freeze()

	p := &pass{
		set:    set.Clone(),
		graph:  freshness.NewGraph(o.resolver),
		result: &PassResult{},
	}
	p.checker = freshness.NewChecker(p.graph, o.opts.Policy, o.opts.AlwaysUpdate)

	if err := o.resolveAll(ctx, p); err != nil {
		return nil, err
	}
	previous := o.store.All()

	o.logger.Debug("build pass starting", "templates", len(p.set))
	o.registry.FireUpdatingStylesheets(append([]callbacks.Job(nil), p.jobs...))

	runErr := o.processAll(ctx, p)
	if runErr != nil && !errors.Is(runErr, ErrAborted) && !errors.Is(runErr, context.Canceled) &&
		!errors.Is(runErr, context.DeadlineExceeded) {
		// keep what was written before the failure
		_ = o.store.Save()
		p.result.Duration = time.Since(start)
		return p.result, runErr
	}

	if err := o.deleteOrphans(p, previous); err != nil {
		_ = o.store.Save()
		p.result.Duration = time.Since(start)
		return p.result, err
	}
	p.result.Duration = time.Since(start)
	if err := o.store.Save(); err != nil {
		return p.result, fmt.Errorf("save freshness cache: %w", err)
	}

	o.logger.Info("build pass finished",
		"written", p.result.Count(StatusWritten),
		"up_to_date", p.result.Count(StatusUpToDate),
		"failed", p.result.Count(StatusFailed),
		"skipped", p.result.Count(StatusSkipped),
		"deleted", len(p.result.Deleted),
		"duration", p.result.Duration)
	return p.result, runErr
}

// resolveAll loads every template and its import closure before anything is
// compiled, so that a cycle anywhere aborts the pass up front.
func (o *Orchestrator) resolveAll(ctx context.Context, p *pass) error {
	p.jobs = make([]callbacks.Job, len(p.set))
	p.units = make([]*source.Unit, len(p.set))
	p.errs = make([]error, len(p.set))

	for i, t := range p.set {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.jobs[i] = callbacks.Job{TemplateID: t.ID, SourcePath: t.SourcePath, OutputPath: t.OutputPath}

		unit, err := o.resolver.Load(t.ID, t.SourcePath)
		if err == nil {
			_, err = p.graph.Closure(unit)
		}
		if err != nil {
			var cyclic *freshness.CyclicImportError
			if errors.As(err, &cyclic) {
				o.logger.Error("import cycle", "template", t.ID, "cycle", cyclic.Cycle)
				return err
			}
			if o.fatal(err) {
				return err
			}
		}
		p.units[i], p.errs[i] = unit, err
	}
	return nil
}

func (o *Orchestrator) processAll(ctx context.Context, p *pass) error {
	var stop error
	for i := range p.set {
		if stop == nil {
			if err := ctx.Err(); err != nil {
				stop = err
			}
		}
		if stop != nil {
			p.result.Outcomes = append(p.result.Outcomes, outcomeFor(p.jobs[i], StatusSkipped))
			continue
		}

		oc := o.process(p, i)
		p.result.Outcomes = append(p.result.Outcomes, oc)
		if oc.Status != StatusFailed {
			continue
		}
		switch {
		case o.fatal(oc.Err):
			stop = oc.Err
		case o.opts.AbortOnError:
			stop = fmt.Errorf("%w at %s: %w", ErrAborted, oc.TemplateID, oc.Err)
		}
	}
	return stop
}

// process moves one template from PENDING to its final state.
func (o *Orchestrator) process(p *pass, i int) Outcome {
	job := p.jobs[i]
	oc := outcomeFor(job, StatusFailed)
	log := o.logger.With("template", job.TemplateID)

	if err := p.errs[i]; err != nil {
		o.registry.FireUpdatingStylesheet(job)
		return o.fail(oc, job, err, log)
	}
	unit := p.units[i]

	var target *freshness.OutputTarget
	if t, ok := o.store.Get(job.TemplateID); ok && t.OutputPath == job.OutputPath {
		target = &t
	}
	verdict, err := p.checker.Check(unit, target)
	oc.Reason = verdict.Reason
	if err != nil {
		o.registry.FireUpdatingStylesheet(job)
		return o.fail(oc, job, err, log)
	}
	if !verdict.Stale {
		log.Debug("up to date")
		o.registry.FireNotUpdatingStylesheet(job)
		oc.Status = StatusUpToDate
		return oc
	}

	log.Debug("compiling", "reason", verdict.Reason)
	o.registry.FireUpdatingStylesheet(job)

	imports, err := p.graph.ImportMap(unit)
	if err != nil {
		return o.fail(oc, job, err, log)
	}
	css, err := o.compiler.Compile(toSource(unit), toSources(imports), o.opts.CompilerOptions())
	if err != nil {
		return o.fail(oc, job, err, log)
	}

	modTime, err := o.writeOutput(job.OutputPath, css)
	if err != nil {
		return o.fail(oc, job, err, log)
	}
	o.store.Put(freshness.OutputTarget{
		TemplateID:   job.TemplateID,
		OutputPath:   job.OutputPath,
		ModTime:      modTime,
		ContentHash:  freshness.HashContent(css),
		SourceDigest: verdict.Digest,
	})

	log.Debug("written", "output", job.OutputPath)
	oc.Status = StatusWritten
	return oc
}

// fail records a per-template failure and reports it to listeners.
func (o *Orchestrator) fail(oc Outcome, job callbacks.Job, err error, log *slog.Logger) Outcome {
	log.Warn("template failed", "error", err)
	o.registry.FireCompilationError(err, job)
	o.invalidate(job, err)

	oc.Status = StatusFailed
	oc.Err = err
	return oc
}

// invalidate forces job to be rebuilt next pass. The target stays recorded
// (with a zero mtime, which never matches the file) while an output exists,
// so that the output is still removed if the template goes away.
func (o *Orchestrator) invalidate(job callbacks.Job, err error) {
	prev, tracked := o.store.Get(job.TemplateID)
	output := prev.OutputPath

	if o.opts.ErrorDisplay == ErrorDisplayCSS && !isIOError(err) {
		if _, werr := o.writeOutput(job.OutputPath, compiler.ErrorStylesheet(err)); werr != nil {
			o.logger.Warn("could not write error stylesheet", "template", job.TemplateID, "error", werr)
		} else {
			tracked, output = true, job.OutputPath
		}
	}

	if !tracked {
		return
	}
	o.store.Put(freshness.OutputTarget{TemplateID: job.TemplateID, OutputPath: output})
}

// deleteOrphans removes outputs recorded before the pass that no template in
// the set produces any more.
func (o *Orchestrator) deleteOrphans(p *pass, previous []freshness.OutputTarget) error {
	produced := make(map[string]string, len(p.set))
	for _, t := range p.set {
		produced[t.ID] = t.OutputPath
	}

	for _, target := range previous {
		out, inSet := produced[target.TemplateID]
		if inSet && out == target.OutputPath {
			continue
		}

		o.registry.FireDeletingCSS(target.TemplateID, target.OutputPath)
		if err := o.removeOutput(target.OutputPath); err != nil {
			o.logger.Warn("could not delete output", "template", target.TemplateID, "error", err)
			if o.opts.IOErrorsFatal {
				return err
			}
			continue
		}
		// a failed template whose output moved may still point at the old file
		if cur, ok := o.store.Get(target.TemplateID); ok && cur.OutputPath == target.OutputPath {
			o.store.Delete(target.TemplateID)
		}
		p.result.Deleted = append(p.result.Deleted, Deletion{TemplateID: target.TemplateID, OutputPath: target.OutputPath})
	}
	return nil
}

// fatal reports whether err has to stop the whole pass.
func (o *Orchestrator) fatal(err error) bool {
	return o.opts.IOErrorsFatal && isIOError(err)
}

func isIOError(err error) bool {
	var ioErr *source.IOError
	return errors.As(err, &ioErr)
}

func outcomeFor(job callbacks.Job, status Status) Outcome {
	return Outcome{
		TemplateID: job.TemplateID,
		SourcePath: job.SourcePath,
		OutputPath: job.OutputPath,
		Status:     status,
	}
}

func toSource(u *source.Unit) compiler.Source {
	return compiler.Source{ID: u.ID, Path: u.Path, Content: u.Content}
}

func toSources(units map[string]*source.Unit) map[string]compiler.Source {
	out := make(map[string]compiler.Source, len(units))
	for id, u := range units {
		out[id] = toSource(u)
	}
	return out
}
