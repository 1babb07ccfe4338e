package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Scheduler wraps gocron for the periodic default-branch republish.
// A scheduled run carries no changed paths, so it rebuilds and
// republishes the default branch unconditionally.
type Scheduler struct {
	scheduler  gocron.Scheduler
	dispatcher *Dispatcher
	defaultRef string
	docsDir    string
}

// NewScheduler creates a scheduler that re-dispatches the default
// branch every interval.
func NewScheduler(dispatcher *Dispatcher, defaultBranch, docsDir string) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler:  s,
		dispatcher: dispatcher,
		defaultRef: "refs/heads/" + defaultBranch,
		docsDir:    docsDir,
	}, nil
}

// SchedulePeriodicRepublish registers the republish job. Returns the
// job ID for diagnostics.
func (s *Scheduler) SchedulePeriodicRepublish(interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.republish),
		gocron.WithName("periodic-republish"),
	)
	if err != nil {
		return "", fmt.Errorf("create periodic republish job: %w", err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) republish() {
	slog.Info("Executing scheduled republish", logfields.Ref(s.defaultRef))
	// Claim a docs change so the branch path filter lets the run
	// through; scheduled republishes always rebuild the full set.
	push := &Push{Ref: s.defaultRef, ChangedPaths: []string{s.docsDir}}
	if err := s.dispatcher.Dispatch(push); err != nil {
		slog.Error("Failed to dispatch scheduled republish",
			logfields.Ref(s.defaultRef), logfields.Error(err))
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
