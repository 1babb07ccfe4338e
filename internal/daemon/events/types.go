package events

import (
	"time"

	"git.home.luguber.info/inful/docship/internal/pipeline"
)

// PushReceived is emitted when a webhook push passes validation and
// should be considered for a pipeline run.
type PushReceived struct {
	Ref          string
	Before       string
	After        string
	ChangedPaths []string
	ReceivedAt   time.Time
}

// RunStarted is emitted when the dispatcher hands a push to the
// pipeline.
type RunStarted struct {
	Ref       string
	StartedAt time.Time
}

// RunSuperseded is emitted when a newer push for the same ref cancels
// an in-flight run.
type RunSuperseded struct {
	Ref          string
	SupersededAt time.Time
}

// RunCompleted carries the final report of a pipeline run. Consumers
// include the run store writer and the NATS notifier.
type RunCompleted struct {
	Report     *pipeline.Report
	FinishedAt time.Time
}
