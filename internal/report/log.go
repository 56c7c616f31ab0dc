package report

import (
	"errors"
	"log/slog"

	"github.com/yacobolo/stylebuild/internal/callbacks"
)

// LogAdapter records every build event as a structured log record.
type LogAdapter struct {
	logger *slog.Logger
}

// NewLogAdapter creates an adapter logging to logger.
func NewLogAdapter(logger *slog.Logger) *LogAdapter {
	return &LogAdapter{logger: logger.With("component", "events")}
}

// Name identifies the adapter.
func (a *LogAdapter) Name() string {
	return "log"
}

// Attach registers one listener per event kind.
func (a *LogAdapter) Attach(reg *callbacks.Registry) error {
	return errors.Join(
		reg.OnUpdatingStylesheets(func(batch []callbacks.Job) {
			a.logger.Debug(string(callbacks.UpdatingStylesheets), "count", len(batch))
		}),
		reg.OnUpdatingStylesheet(func(job callbacks.Job) {
			a.logger.Info(string(callbacks.UpdatingStylesheet), jobAttrs(job)...)
		}),
		reg.OnNotUpdatingStylesheet(func(job callbacks.Job) {
			a.logger.Debug(string(callbacks.NotUpdatingStylesheet), jobAttrs(job)...)
		}),
		reg.OnCompilationError(func(err error, job callbacks.Job) {
			a.logger.Error(string(callbacks.CompilationError), append(jobAttrs(job), "error", err)...)
		}),
		reg.OnCreatingDirectory(func(dir string) {
			a.logger.Info(string(callbacks.CreatingDirectory), "dir", dir)
		}),
		reg.OnTemplateModified(func(path string) {
			a.logger.Info(string(callbacks.TemplateModified), "path", path)
		}),
		reg.OnTemplateCreated(func(path string) {
			a.logger.Info(string(callbacks.TemplateCreated), "path", path)
		}),
		reg.OnTemplateDeleted(func(path string) {
			a.logger.Info(string(callbacks.TemplateDeleted), "path", path)
		}),
		reg.OnDeletingCSS(func(templateID, output string) {
			a.logger.Info(string(callbacks.DeletingCSS), "template", templateID, "output", output)
		}),
	)
}

func jobAttrs(job callbacks.Job) []any {
	return []any{"template", job.TemplateID, "source", job.SourcePath, "output", job.OutputPath}
}
