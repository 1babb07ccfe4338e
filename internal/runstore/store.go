// Package runstore persists pipeline run history and per-stage events.
package runstore

import (
	"context"
	"time"

	"git.home.luguber.info/inful/docship/internal/pipeline"
)

// Run is one persisted pipeline run.
type Run struct {
	ID             string          `json:"id"`
	Ref            string          `json:"ref"`
	Version        string          `json:"version,omitempty"`
	Status         pipeline.Status `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	ObjectsWritten int             `json:"objects_written"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Event is a per-run stage event.
type Event struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   []byte            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Store defines the interface for persisting and retrieving runs.
type Store interface {
	// RecordRun inserts or replaces a run record.
	RecordRun(ctx context.Context, report *pipeline.Report) error

	// AppendEvent adds a stage event for a run.
	AppendEvent(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error

	// GetRun retrieves a single run by ID.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRecent returns the most recent runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]Run, error)

	// EventsByRun retrieves all events for a run, oldest first.
	EventsByRun(ctx context.Context, runID string) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
