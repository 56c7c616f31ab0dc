package report

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/yacobolo/stylebuild/internal/build"
	"github.com/yacobolo/stylebuild/internal/compiler"
)

// JSONOutput represents the structured JSON export schema
type JSONOutput struct {
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Summary   JSONSummary   `json:"summary"`
	Outcomes  []JSONOutcome `json:"outcomes"`
	Deleted   []JSONDeleted `json:"deleted"`
	Error     string        `json:"error,omitempty"`
}

// JSONSummary contains per-status counts of a pass
type JSONSummary struct {
	Templates  int   `json:"templates"`
	Written    int   `json:"written"`
	UpToDate   int   `json:"up_to_date"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	Deleted    int   `json:"deleted"`
	DurationMS int64 `json:"duration_ms"`
}

// JSONOutcome represents what happened to one template
type JSONOutcome struct {
	Template string     `json:"template"`
	Source   string     `json:"source"`
	Output   string     `json:"output"`
	Status   string     `json:"status"`
	Reason   string     `json:"reason,omitempty"`
	Error    *JSONError `json:"error,omitempty"`
}

// JSONError locates a compilation failure
type JSONError struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// JSONDeleted represents an orphaned output removed by the pass
type JSONDeleted struct {
	Template string `json:"template"`
	Output   string `json:"output"`
}

// WriteJSON writes the pass result as JSON. passErr is the error that
// stopped the pass, if any; result may be nil when it stopped before any
// template was processed.
func WriteJSON(w io.Writer, result *build.PassResult, passErr error) error {
	output := buildJSONOutput(result, passErr)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// buildJSONOutput converts a PassResult to JSONOutput
func buildJSONOutput(result *build.PassResult, passErr error) JSONOutput {
	output := JSONOutput{
		Version:   "1.0",
		Timestamp: time.Now().Format(time.RFC3339),
		Outcomes:  []JSONOutcome{},
		Deleted:   []JSONDeleted{},
	}
	if passErr != nil {
		output.Error = passErr.Error()
	}
	if result == nil {
		return output
	}

	output.Summary = JSONSummary{
		Templates:  len(result.Outcomes),
		Written:    result.Count(build.StatusWritten),
		UpToDate:   result.Count(build.StatusUpToDate),
		Failed:     result.Count(build.StatusFailed),
		Skipped:    result.Count(build.StatusSkipped),
		Deleted:    len(result.Deleted),
		DurationMS: result.Duration.Milliseconds(),
	}

	for _, o := range result.Outcomes {
		output.Outcomes = append(output.Outcomes, JSONOutcome{
			Template: o.TemplateID,
			Source:   o.SourcePath,
			Output:   o.OutputPath,
			Status:   string(o.Status),
			Reason:   o.Reason,
			Error:    jsonError(o.Err),
		})
	}
	for _, d := range result.Deleted {
		output.Deleted = append(output.Deleted, JSONDeleted{Template: d.TemplateID, Output: d.OutputPath})
	}
	return output
}

func jsonError(err error) *JSONError {
	if err == nil {
		return nil
	}
	var cerr *compiler.Error
	if errors.As(err, &cerr) {
		return &JSONError{Message: cerr.Message, File: cerr.File, Line: cerr.Line, Column: cerr.Column}
	}
	return &JSONError{Message: err.Error()}
}
