package callbacks

// The Fire* methods snapshot the listener list under the read lock and call
// listeners outside it, in registration order.

// FireUpdatingStylesheets notifies listeners that a pass is starting.
func (r *Registry) FireUpdatingStylesheets(batch []Job) {
	r.mu.RLock()
	listeners := r.updatingStylesheets
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(batch)
	}
}

// FireUpdatingStylesheet notifies listeners that job is about to be compiled.
func (r *Registry) FireUpdatingStylesheet(job Job) {
	r.mu.RLock()
	listeners := r.updatingStylesheet
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(job)
	}
}

// FireNotUpdatingStylesheet notifies listeners that job is up to date.
func (r *Registry) FireNotUpdatingStylesheet(job Job) {
	r.mu.RLock()
	listeners := r.notUpdatingStylesheet
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(job)
	}
}

// FireCompilationError notifies listeners that job failed with err.
func (r *Registry) FireCompilationError(err error, job Job) {
	r.mu.RLock()
	listeners := r.compilationError
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(err, job)
	}
}

// FireCreatingDirectory notifies listeners that dir is being created.
func (r *Registry) FireCreatingDirectory(dir string) {
	r.mu.RLock()
	listeners := r.creatingDirectory
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(dir)
	}
}

// FireTemplateModified notifies listeners of a modified template file.
func (r *Registry) FireTemplateModified(path string) {
	r.mu.RLock()
	listeners := r.templateModified
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(path)
	}
}

// FireTemplateCreated notifies listeners of a new template file.
func (r *Registry) FireTemplateCreated(path string) {
	r.mu.RLock()
	listeners := r.templateCreated
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(path)
	}
}

// FireTemplateDeleted notifies listeners of a removed template file.
func (r *Registry) FireTemplateDeleted(path string) {
	r.mu.RLock()
	listeners := r.templateDeleted
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(path)
	}
}

// FireDeletingCSS notifies listeners that an orphaned output is about to be removed.
func (r *Registry) FireDeletingCSS(templateID, outputPath string) {
	r.mu.RLock()
	listeners := r.deletingCSS
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(templateID, outputPath)
	}
}
