package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/callbacks"
)

// DefaultDebounce is how long the loop waits for a burst of changes to settle.
const DefaultDebounce = 100 * time.Millisecond

// ErrNotifierClosed is returned by Run when the notifier stops delivering
// events before the context is cancelled.
var ErrNotifierClosed = errors.New("watch: notifier closed")

// Pass runs one build pass. The engine supplies a Pass that rediscovers the
// template set so that created and deleted templates are picked up.
type Pass func(ctx context.Context) (*build.PassResult, error)

// Loop waits for changes and runs a pass after each settled burst. Passes
// never overlap: changes seen while a pass runs are collected and trigger
// exactly one follow-up pass.
type Loop struct {
	notifier Notifier
	filter   *Filter
	pass     Pass
	registry *callbacks.Registry
	debounce time.Duration
	logger   *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithDebounce sets the settle window.
func WithDebounce(d time.Duration) Option {
	return func(l *Loop) { l.debounce = d }
}

// WithLogger sets the logger for pass failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop creates a loop.
func NewLoop(notifier Notifier, filter *Filter, pass Pass, registry *callbacks.Registry, opts ...Option) *Loop {
	l := &Loop{
		notifier: notifier,
		filter:   filter,
		pass:     pass,
		registry: registry,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry == nil {
		l.registry = callbacks.NewRegistry()
	}
	return l
}

// Run performs an initial pass and then watches until ctx is cancelled.
// It returns nil on cancellation. Failed passes are logged and do not stop
// the loop; a panicking listener does.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.notifier.Start(ctx, l.filter.Roots()); err != nil {
		return err
	}
	defer func() { _ = l.notifier.Close() }()

	l.logger.Info("watching for changes", "dirs", l.filter.Roots())
	l.runPass(ctx)

	pending := newChangeSet()
	var (
		timer  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-l.notifier.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrNotifierClosed
			}
			if !l.filter.Match(ev.Path) {
				continue
			}
			pending.add(ev)
			if timer == nil {
				timer = time.NewTimer(l.debounce)
			} else {
				timer.Reset(l.debounce)
			}
			settle = timer.C

		case <-settle:
			settle = nil
			changes := pending.flush()
			if len(changes) == 0 {
				continue
			}
			l.announce(changes)
			l.runPass(ctx)
		}
	}
}

// announce fires the template change events before the pass runs.
func (l *Loop) announce(changes []change) {
	for _, c := range changes {
		l.logger.Debug("template changed", "path", c.path, "kind", c.kind)
		switch c.kind {
		case callbacks.TemplateCreated:
			l.registry.FireTemplateCreated(c.path)
		case callbacks.TemplateDeleted:
			l.registry.FireTemplateDeleted(c.path)
		default:
			l.registry.FireTemplateModified(c.path)
		}
	}
}

func (l *Loop) runPass(ctx context.Context) {
	result, err := l.pass(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("build pass failed", "error", err)
		return
	}
	if result != nil && result.HasFailures() {
		l.logger.Warn("build pass finished with errors", "failed", result.Count(build.StatusFailed))
	}
}

type change struct {
	path string
	kind callbacks.Kind
}

// changeSet accumulates the events of a burst per path.
type changeSet struct {
	ops map[string]Op
}

func newChangeSet() *changeSet {
	return &changeSet{ops: make(map[string]Op)}
}

func (s *changeSet) add(ev Event) {
	prev, seen := s.ops[ev.Path]
	switch {
	case !seen:
		s.ops[ev.Path] = ev.Op
	case prev == OpCreate && ev.Op == OpWrite:
		// still a creation
	case prev == OpCreate && (ev.Op == OpRemove || ev.Op == OpRename):
		// created and gone again within one burst
		delete(s.ops, ev.Path)
	default:
		s.ops[ev.Path] = ev.Op
	}
}

// flush classifies the collected paths against the filesystem as it is now
// and resets the set.
func (s *changeSet) flush() []change {
	paths := make([]string, 0, len(s.ops))
	for p := range s.ops {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	changes := make([]change, 0, len(paths))
	for _, p := range paths {
		op := s.ops[p]
		_, err := os.Stat(p)
		exists := err == nil

		var kind callbacks.Kind
		switch {
		case !exists:
			kind = callbacks.TemplateDeleted
		case op == OpCreate || op == OpRename:
			kind = callbacks.TemplateCreated
		default:
			// written, or replaced by an editor's remove-and-recreate save
			kind = callbacks.TemplateModified
		}
		changes = append(changes, change{path: p, kind: kind})
	}
	s.ops = make(map[string]Op)
	return changes
}
