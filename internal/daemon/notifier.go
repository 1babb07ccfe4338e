package daemon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/pipeline"
)

// Notifier publishes run completion notifications to NATS so other
// systems (chat bots, release dashboards) can react to publishes.
type Notifier struct {
	conn    *nats.Conn
	subject string
}

// RunNotification is the JSON body published per completed run.
type RunNotification struct {
	RunID          string    `json:"run_id"`
	Ref            string    `json:"ref"`
	Version        string    `json:"version,omitempty"`
	Status         string    `json:"status"`
	ObjectsWritten int       `json:"objects_written"`
	DurationMS     int64     `json:"duration_ms"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NewNotifier connects to NATS. An empty URL disables notifications
// and returns a nil notifier, which is safe to use.
func NewNotifier(url, subject string) (*Notifier, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("NATS notifier connected", logfields.URL(url), slog.String("subject", subject))
	return &Notifier{conn: conn, subject: subject}, nil
}

// NotifyRunCompleted publishes a completion notification.
func (n *Notifier) NotifyRunCompleted(report *pipeline.Report) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(RunNotification{
		RunID:          report.RunID,
		Ref:            report.Ref,
		Version:        report.Version,
		Status:         string(report.Status),
		ObjectsWritten: report.ObjectsWritten,
		DurationMS:     report.Duration().Milliseconds(),
		FinishedAt:     report.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal run notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, body); err != nil {
		return fmt.Errorf("publish run notification: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (n *Notifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
