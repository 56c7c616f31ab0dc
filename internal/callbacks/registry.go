// Package callbacks holds the listener registry for build lifecycle events.
//
// A Registry is created by the host application and handed to the build
// orchestrator and the watch loop. Listeners are appended before the first
// pass starts; once a pass begins the registry is frozen and further
// registration fails with ErrRegistryFrozen.
//
// Listeners run synchronously on the goroutine executing the pass. A panic in
// a listener is not recovered and propagates to the caller of the pass.
package callbacks

import (
	"errors"
	"sync"
)

// ErrRegistryFrozen is returned when a listener is registered after a pass started.
var ErrRegistryFrozen = errors.New("callback registry is frozen: listeners must be registered before the first pass")

// Kind identifies a lifecycle event.
type Kind string

// Event kinds fired by the orchestrator and the watch loop.
const (
	UpdatingStylesheets   Kind = "updating_stylesheets"
	UpdatingStylesheet    Kind = "updating_stylesheet"
	NotUpdatingStylesheet Kind = "not_updating_stylesheet"
	CompilationError      Kind = "compilation_error"
	CreatingDirectory     Kind = "creating_directory"
	TemplateModified      Kind = "template_modified"
	TemplateCreated       Kind = "template_created"
	TemplateDeleted       Kind = "template_deleted"
	DeletingCSS           Kind = "deleting_css"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{
	UpdatingStylesheets,
	UpdatingStylesheet,
	NotUpdatingStylesheet,
	CompilationError,
	CreatingDirectory,
	TemplateModified,
	TemplateCreated,
	TemplateDeleted,
	DeletingCSS,
}

// Job names one template and the output it compiles to.
type Job struct {
	TemplateID string
	SourcePath string
	OutputPath string
}

// Listener signatures, one per payload shape.
type (
	BatchListener    func(batch []Job)
	JobListener      func(job Job)
	ErrorListener    func(err error, job Job)
	PathListener     func(path string)
	DeletionListener func(templateID, outputPath string)
)

// Registry stores listeners per event kind. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	frozen bool

	updatingStylesheets   []BatchListener
	updatingStylesheet    []JobListener
	notUpdatingStylesheet []JobListener
	compilationError      []ErrorListener
	creatingDirectory     []PathListener
	templateModified      []PathListener
	templateCreated       []PathListener
	templateDeleted       []PathListener
	deletingCSS           []DeletionListener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Freeze disallows further registration. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether a pass has already started with this registry.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Count returns the number of listeners registered for kind.
func (r *Registry) Count(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch kind {
	case UpdatingStylesheets:
		return len(r.updatingStylesheets)
	case UpdatingStylesheet:
		return len(r.updatingStylesheet)
	case NotUpdatingStylesheet:
		return len(r.notUpdatingStylesheet)
	case CompilationError:
		return len(r.compilationError)
	case CreatingDirectory:
		return len(r.creatingDirectory)
	case TemplateModified:
		return len(r.templateModified)
	case TemplateCreated:
		return len(r.templateCreated)
	case TemplateDeleted:
		return len(r.templateDeleted)
	case DeletingCSS:
		return len(r.deletingCSS)
	}
	return 0
}

// register runs add under the write lock unless the registry is frozen.
func (r *Registry) register(add func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	add()
	return nil
}

// OnUpdatingStylesheets registers a listener fired once per pass with the full batch.
func (r *Registry) OnUpdatingStylesheets(fn BatchListener) error {
	return r.register(func() { r.updatingStylesheets = append(r.updatingStylesheets, fn) })
}

// OnUpdatingStylesheet registers a listener fired before a stale template is compiled.
func (r *Registry) OnUpdatingStylesheet(fn JobListener) error {
	return r.register(func() { r.updatingStylesheet = append(r.updatingStylesheet, fn) })
}

// OnNotUpdatingStylesheet registers a listener fired for templates that are up to date.
func (r *Registry) OnNotUpdatingStylesheet(fn JobListener) error {
	return r.register(func() { r.notUpdatingStylesheet = append(r.notUpdatingStylesheet, fn) })
}

// OnCompilationError registers a listener fired for every per-template failure.
func (r *Registry) OnCompilationError(fn ErrorListener) error {
	return r.register(func() { r.compilationError = append(r.compilationError, fn) })
}

// OnCreatingDirectory registers a listener fired for each output directory created.
func (r *Registry) OnCreatingDirectory(fn PathListener) error {
	return r.register(func() { r.creatingDirectory = append(r.creatingDirectory, fn) })
}

// OnTemplateModified registers a listener fired by the watch loop.
func (r *Registry) OnTemplateModified(fn PathListener) error {
	return r.register(func() { r.templateModified = append(r.templateModified, fn) })
}

// OnTemplateCreated registers a listener fired by the watch loop.
func (r *Registry) OnTemplateCreated(fn PathListener) error {
	return r.register(func() { r.templateCreated = append(r.templateCreated, fn) })
}

// OnTemplateDeleted registers a listener fired by the watch loop.
func (r *Registry) OnTemplateDeleted(fn PathListener) error {
	return r.register(func() { r.templateDeleted = append(r.templateDeleted, fn) })
}

// OnDeletingCSS registers a listener fired before an orphaned output is removed.
func (r *Registry) OnDeletingCSS(fn DeletionListener) error {
	return r.register(func() { r.deletingCSS = append(r.deletingCSS, fn) })
}
