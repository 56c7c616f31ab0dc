package build

import (
	"time"
)

// Status is the final state of a template in a pass.
type Status string

const (
	StatusUpToDate Status = "up_to_date"
	StatusWritten  Status = "written"
	StatusFailed   Status = "failed"
	// StatusSkipped marks templates not reached after an abort.
	StatusSkipped Status = "skipped"
)

// Outcome is what happened to one template.
type Outcome struct {
	TemplateID string
	SourcePath string
	OutputPath string
	Status     Status
	Reason     string // staleness verdict for checked templates
	Err        error  // set when Status is StatusFailed
}

// Deletion is an orphaned output removed by the pass.
type Deletion struct {
	TemplateID string
	OutputPath string
}

// PassResult is the complete outcome list of a pass, in TemplateSet order.
type PassResult struct {
	Outcomes []Outcome
	Deleted  []Deletion
	Duration time.Duration
}

// Count returns the number of outcomes with status s.
func (r *PassResult) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failures returns the failed outcomes.
func (r *PassResult) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// HasFailures reports whether any template failed.
func (r *PassResult) HasFailures() bool {
	return r.Count(StatusFailed) > 0
}

// Outcome returns the outcome of templateID.
func (r *PassResult) Outcome(templateID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.TemplateID == templateID {
			return o, true
		}
	}
	return Outcome{}, false
}
