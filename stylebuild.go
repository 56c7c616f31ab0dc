// Package stylebuild compiles SCSS-like templates into CSS, rebuilding only
// the stylesheets whose sources changed.
//
// # Building
//
// An Engine owns the configuration snapshot, the callback registry and the
// freshness store:
//
//	reg := stylebuild.NewRegistry()
//	engine, err := stylebuild.New(stylebuild.Options{
//		Locations: []stylebuild.Location{{SourceDir: "styles", OutputDir: "public/css"}},
//		Build:     stylebuild.DefaultBuildOptions(),
//	}, reg)
//	result, err := engine.Update(ctx)
//
// Listeners are registered on the registry, directly or through adapters
// passed to Engine.Use, before the first pass; the registry is frozen once a
// pass starts.
//
// # Watching
//
// Engine.Watch runs an initial pass and then rebuilds whenever a template
// changes, until its context is cancelled.
//
// # CLI Tool
//
// stylebuild also provides a CLI tool. Install with:
//
//	go install github.com/yacobolo/stylebuild/cmd/stylebuild@latest
package stylebuild

import (
	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/callbacks"
	"github.com/yacobolo/stylebuild/internal/compiler"
	"github.com/yacobolo/stylebuild/internal/freshness"
	"github.com/yacobolo/stylebuild/internal/source"
)

// Types shared with the internal packages.
type (
	Registry     = callbacks.Registry
	Job          = callbacks.Job
	Kind         = callbacks.Kind
	Location     = source.Location
	Template     = source.Template
	TemplateSet  = source.TemplateSet
	BuildOptions = build.Options
	PassResult   = build.PassResult
	Outcome      = build.Outcome
	Status       = build.Status
	Store        = freshness.Store
)

// Error types, matched with errors.As.
type (
	NotFoundError          = source.NotFoundError
	IOError                = source.IOError
	CyclicImportError      = freshness.CyclicImportError
	CompilationError       = compiler.Error
	DuplicateTemplateError = source.DuplicateTemplateError
)

var (
	// ErrRegistryFrozen is returned when a listener is registered after the first pass.
	ErrRegistryFrozen = callbacks.ErrRegistryFrozen
	// ErrAborted is wrapped by the error of a pass stopped by abort-on-error.
	ErrAborted = build.ErrAborted
)

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return callbacks.NewRegistry()
}

// DefaultBuildOptions returns the build options used when nothing is configured.
func DefaultBuildOptions() BuildOptions {
	return build.DefaultOptions()
}

// Adapter wires a consumer of build events, such as a terminal reporter or a
// logger, into a registry.
type Adapter interface {
	Name() string
	Attach(reg *Registry) error
}
