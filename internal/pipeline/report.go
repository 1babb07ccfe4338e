package pipeline

import (
	"time"
)

// Status is the overall outcome of a pipeline run.
type Status string

const (
	// StatusSkipped: the trigger evaluator declined to build.
	StatusSkipped Status = "skipped"
	// StatusBuilt: build succeeded; the decision did not call for a publish.
	StatusBuilt Status = "built"
	// StatusPublished: bucket sync succeeded (invalidation may still
	// have produced a warning).
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Issue records a stage problem inside a report.
type Issue struct {
	Stage   StageName `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Report is the durable record of one pipeline run.
type Report struct {
	RunID      string    `json:"run_id"`
	Ref        string    `json:"ref"`
	Version    string    `json:"version,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	StageDurations map[StageName]time.Duration `json:"stage_durations"`
	Issues         []Issue                     `json:"issues,omitempty"`

	// ObjectsWritten counts bucket objects written, including by a
	// partial sync that subsequently failed.
	ObjectsWritten int `json:"objects_written"`
}

// NewReport initializes a report for a starting run.
func NewReport(runID, ref string) *Report {
	return &Report{
		RunID:          runID,
		Ref:            ref,
		StartedAt:      time.Now(),
		StageDurations: make(map[StageName]time.Duration),
	}
}

// AddIssue appends a stage problem.
func (r *Report) AddIssue(stage StageName, kind ErrorKind, message string) {
	r.Issues = append(r.Issues, Issue{Stage: stage, Kind: kind, Message: message})
}

// Finish stamps the completion time.
func (r *Report) Finish() { r.FinishedAt = time.Now() }

// Duration returns total wall-clock run time.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// HasWarnings reports whether any non-fatal issue was recorded.
func (r *Report) HasWarnings() bool {
	for _, issue := range r.Issues {
		if issue.Kind == KindWarning {
			return true
		}
	}
	return false
}
