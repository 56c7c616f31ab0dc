package stylebuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
	"github.com/yacobolo/stylebuild/internal/watch"
)

// Options configures an Engine.
type Options struct {
	// Locations lists template directories and where their output goes.
	Locations []Location
	// LoadPaths are searched for imports after the template directories.
	LoadPaths []string
	// Extensions of template files; defaults to .scss and .css.
	Extensions []string
	// CacheLocation keeps the freshness store on disk. Empty keeps it in memory.
	CacheLocation string

	Build BuildOptions

	// AlwaysCheck makes every CheckForUpdates call run a pass.
	AlwaysCheck bool
	// NeverUpdate turns CheckForUpdates into a no-op.
	NeverUpdate bool

	Watch WatchOptions
}

// WatchOptions configures Engine.Watch.
type WatchOptions struct {
	// Poll scans the template directories instead of using filesystem notifications.
	Poll         bool
	PollInterval time.Duration
	Debounce     time.Duration
}

// ErrNoLocations is returned by New when no template location is configured.
var ErrNoLocations = errors.New("no template locations configured")

// Engine runs build passes over the configured template locations.
type Engine struct {
	opts     Options
	registry *Registry
	resolver *source.Resolver
	orch     *build.Orchestrator
	logger   *slog.Logger

	notifier watch.Notifier
	store    freshness.Store
	compiler build.Compiler
	hooks    []PassHook

	mu      sync.Mutex
	checked bool
}

// PassHook observes the outcome of every pass the engine runs.
type PassHook func(result *PassResult, err error)

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithStore replaces the freshness store selected by Options.CacheLocation.
func WithStore(store Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithNotifier replaces the notifier selected by Options.Watch.
func WithNotifier(n watch.Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithCompiler replaces the stylesheet compiler.
func WithCompiler(c build.Compiler) EngineOption {
	return func(e *Engine) { e.compiler = c }
}

// WithPassHook adds a hook run after every pass, including watch passes.
func WithPassHook(hook PassHook) EngineOption {
	return func(e *Engine) { e.hooks = append(e.hooks, hook) }
}

// New creates an engine. A nil registry gets a fresh one.
func New(opts Options, registry *Registry, options ...EngineOption) (*Engine, error) {
	if len(opts.Locations) == 0 {
		return nil, ErrNoLocations
	}
	opts = opts.clone()
	if len(opts.Extensions) == 0 {
		opts.Extensions = slices.Clone(source.DefaultExtensions)
	}
	if opts.Build.Dialect == "" {
		opts.Build.Dialect = build.DefaultOptions().Dialect
	}
	if registry == nil {
		registry = NewRegistry()
	}

	e := &Engine{
		opts:     opts,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.store == nil {
		store, err := openStore(opts.CacheLocation)
		if err != nil {
			return nil, err
		}
		e.store = store
	}
	if e.compiler == nil {
		e.compiler = compiler.New()
	}

	searchPaths := make([]string, 0, len(opts.Locations)+len(opts.LoadPaths))
	for _, loc := range opts.Locations {
		searchPaths = append(searchPaths, loc.SourceDir)
	}
	searchPaths = append(searchPaths, opts.LoadPaths...)

	e.resolver = source.NewResolver(searchPaths, opts.Extensions, opts.Build.Dialect)
	e.orch = build.New(e.resolver, e.compiler, e.store, registry, opts.Build, e.logger)
	// keep the defaults the orchestrator filled in
	e.opts.Build = e.orch.Options()
	return e, nil
}

func openStore(cacheLocation string) (freshness.Store, error) {
	if cacheLocation == "" {
		return freshness.NewMemoryStore(), nil
	}
	store, err := freshness.OpenFileStore(cacheLocation)
	if err != nil {
		return nil, fmt.Errorf("open freshness cache: %w", err)
	}
	return store, nil
}

// Registry returns the engine's callback registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Options returns a copy of the engine's configuration.
func (e *Engine) Options() Options {
	return e.opts.clone()
}

// CompilerOptions returns the options every compilation runs with.
func (e *Engine) CompilerOptions() compiler.Options {
	return e.opts.Build.CompilerOptions()
}

// Use attaches adapters to the registry. It fails with ErrRegistryFrozen
// once a pass has started.
func (e *Engine) Use(adapters ...Adapter) error {
	for _, a := range adapters {
		if err := a.Attach(e.registry); err != nil {
			return fmt.Errorf("attach adapter %s: %w", a.Name(), err)
		}
		e.logger.Debug("adapter attached", "adapter", a.Name())
	}
	return nil
}

// Templates discovers the current TemplateSet of the configured locations.
func (e *Engine) Templates() (TemplateSet, error) {
	set, err := source.Discover(e.opts.Locations, e.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("discover templates: %w", err)
	}
	return set, nil
}

// Update discovers the templates and runs a pass over them.
func (e *Engine) Update(ctx context.Context) (*PassResult, error) {
	set, err := e.Templates()
	if err != nil {
		e.afterPass(nil, err)
		return nil, err
	}
	return e.UpdateTemplates(ctx, set)
}

// UpdateTemplates runs a pass over an explicit TemplateSet. Stored outputs of
// templates missing from set are deleted.
func (e *Engine) UpdateTemplates(ctx context.Context, set TemplateSet) (*PassResult, error) {
	result, err := e.orch.Run(ctx, set)

	e.mu.Lock()
	e.checked = true
	e.mu.Unlock()

	e.afterPass(result, err)
	return result, err
}

// CheckForUpdates runs Update unless a pass already ran and AlwaysCheck is
// off. With NeverUpdate it does nothing. A nil result means no pass ran.
func (e *Engine) CheckForUpdates(ctx context.Context) (*PassResult, error) {
	if e.opts.NeverUpdate {
		return nil, nil
	}
	if e.CheckedForUpdates() && !e.opts.AlwaysCheck {
		return nil, nil
	}
	return e.Update(ctx)
}

// CheckedForUpdates reports whether a pass has run.
func (e *Engine) CheckedForUpdates() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checked
}

// Watch runs an initial pass and rebuilds on every template change until
// ctx is cancelled. Failed passes are logged and watching continues.
func (e *Engine) Watch(ctx context.Context) error {
	filter := watch.NewFilter(e.opts.Locations, e.opts.Extensions)

	notifier := e.notifier
	if notifier == nil {
		if e.opts.Watch.Poll {
			notifier = watch.NewPollNotifier(e.opts.Watch.PollInterval)
		} else {
			fsn, err := watch.NewFSNotifier(e.logger)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			notifier = fsn
		}
	}

	loopOpts := []watch.Option{watch.WithLogger(e.logger)}
	if e.opts.Watch.Debounce > 0 {
		loopOpts = append(loopOpts, watch.WithDebounce(e.opts.Watch.Debounce))
	}

	loop := watch.NewLoop(notifier, filter, e.Update, e.registry, loopOpts...)
	return loop.Run(ctx)
}

func (e *Engine) afterPass(result *PassResult, err error) {
	for _, hook := range e.hooks {
		hook(result, err)
	}
}

func (o Options) clone() Options {
	o.Locations = slices.Clone(o.Locations)
	o.LoadPaths = slices.Clone(o.LoadPaths)
	o.Extensions = slices.Clone(o.Extensions)
	return o
}
