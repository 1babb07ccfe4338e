// Package daemon runs the webhook-driven publishing service: it
// receives forge push events, dispatches pipeline runs with per-ref
// supersede semantics, persists run history and exposes health,
// status and metrics endpoints.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/daemon/events"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/metrics"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/runstore"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

// Daemon is the long-running publish service.
type Daemon struct {
	mu   sync.RWMutex
	cfg  *config.Config
	pipe *pipeline.Pipeline

	bus        *events.Bus
	dispatcher *Dispatcher
	scheduler  *Scheduler
	notifier   *Notifier
	store      runstore.Store
	watcher    *ConfigWatcher
	httpServer *HTTPServer

	registry *prom.Registry
	recorder *metrics.PrometheusRecorder

	startTime  time.Time
	consumerWG sync.WaitGroup
	cancelBg   context.CancelFunc
}

// Status is the payload of the /status endpoint.
type Status struct {
	Project       string `json:"project"`
	DefaultBranch string `json:"default_branch"`
	InFlightRuns  int    `json:"in_flight_runs"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	StartedAt     string `json:"started_at"`
}

// New assembles a daemon from configuration.
func New(cfg *config.Config) (*Daemon, error) {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	pipe, err := pipeline.New(cfg, pipeline.WithObserver(metrics.NewRunObserver(recorder)))
	if err != nil {
		return nil, fmt.Errorf("assemble pipeline: %w", err)
	}

	store, err := runstore.NewSQLiteStore(cfg.Daemon.RunStorePath)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	notifier, err := NewNotifier(cfg.Daemon.NATSURL, cfg.Daemon.NATSSubject)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		pipe:      pipe,
		bus:       events.NewBus(),
		notifier:  notifier,
		store:     store,
		registry:  registry,
		recorder:  recorder,
		startTime: time.Now(),
	}
	d.dispatcher = NewDispatcher(d, d.bus, recorder, cfg.Daemon.Workers)
	d.httpServer = NewHTTPServer(d)
	return d, nil
}

// Run implements the dispatcher's Runner against the current pipeline,
// so a config reload takes effect for subsequent runs.
func (d *Daemon) Run(ctx context.Context, event trigger.Event, allowPublish bool) (*pipeline.Report, error) {
	d.mu.RLock()
	pipe := d.pipe
	d.mu.RUnlock()
	return pipe.Run(ctx, event, allowPublish)
}

// HandlePush validates nothing further; the webhook layer already did.
// It hands the push to the dispatcher.
func (d *Daemon) HandlePush(ctx context.Context, push *Push) error {
	if err := d.bus.Publish(ctx, events.PushReceived{
		Ref:          push.Ref,
		Before:       push.Before,
		After:        push.After,
		ChangedPaths: push.ChangedPaths,
		ReceivedAt:   time.Now(),
	}); err != nil {
		slog.Warn("Failed to publish push event", logfields.Error(err))
	}
	return d.dispatcher.Dispatch(push)
}

// Config returns the current configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Registry exposes the prometheus registry for the metrics endpoint.
func (d *Daemon) Registry() *prom.Registry { return d.registry }

// Store exposes the run history store.
func (d *Daemon) Store() runstore.Store { return d.store }

// Status reports current daemon state.
func (d *Daemon) Status() Status {
	cfg := d.Config()
	return Status{
		Project:       cfg.Project.ID,
		DefaultBranch: cfg.Project.DefaultBranch,
		InFlightRuns:  d.dispatcher.InFlight(),
		UptimeSeconds: int64(time.Since(d.startTime).Seconds()),
		StartedAt:     d.startTime.UTC().Format(time.RFC3339),
	}
}

// ReloadConfig swaps in a new configuration and rebuilds the pipeline.
// Listen address, run store and NATS settings are rejected upstream by
// the config watcher.
func (d *Daemon) ReloadConfig(cfg *config.Config) error {
	pipe, err := pipeline.New(cfg, pipeline.WithObserver(metrics.NewRunObserver(d.recorder)))
	if err != nil {
		return fmt.Errorf("assemble pipeline: %w", err)
	}

	d.mu.Lock()
	d.cfg = cfg
	d.pipe = pipe
	d.mu.Unlock()
	return nil
}

// Start brings up the run consumer, scheduler, config watcher and HTTP
// server, then blocks until ctx is canceled.
func (d *Daemon) Start(ctx context.Context, configPath string) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	d.cancelBg = cancel

	d.startRunConsumer()

	cfg := d.Config()
	if cfg.Daemon.ScheduleInterval > 0 {
		sched, err := NewScheduler(d.dispatcher, cfg.Project.DefaultBranch, cfg.Project.DocsDir)
		if err != nil {
			_ = d.shutdown()
			return err
		}
		d.scheduler = sched
		if _, err := sched.SchedulePeriodicRepublish(cfg.Daemon.ScheduleInterval); err != nil {
			_ = d.shutdown()
			return err
		}
		sched.Start()
	}

	if configPath != "" {
		watcher, err := NewConfigWatcher(configPath, d)
		if err != nil {
			_ = d.shutdown()
			return err
		}
		d.watcher = watcher
		if err := watcher.Start(bgCtx); err != nil {
			_ = d.shutdown()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.httpServer.Start() }()

	slog.Info("Daemon started",
		slog.String("project", cfg.Project.ID),
		slog.String("addr", cfg.Daemon.ListenAddr),
		slog.Int("workers", cfg.Daemon.Workers))

	select {
	case <-ctx.Done():
		return d.shutdown()
	case err := <-errCh:
		_ = d.shutdown()
		return err
	}
}

// startRunConsumer persists and broadcasts completed runs.
func (d *Daemon) startRunConsumer() {
	completed, unsub := events.Subscribe[events.RunCompleted](d.bus, 16)
	d.consumerWG.Add(1)
	go func() {
		defer d.consumerWG.Done()
		defer unsub()
		for evt := range completed {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := d.store.RecordRun(ctx, evt.Report); err != nil {
				slog.Error("Failed to record run", logfields.RunID(evt.Report.RunID), logfields.Error(err))
			}
			for _, issue := range evt.Report.Issues {
				payload, err := json.Marshal(issue)
				if err != nil {
					continue
				}
				if err := d.store.AppendEvent(ctx, evt.Report.RunID, "stage_issue", payload,
					map[string]string{"stage": string(issue.Stage), "kind": string(issue.Kind)}); err != nil {
					slog.Warn("Failed to record stage issue", logfields.RunID(evt.Report.RunID), logfields.Error(err))
				}
			}
			cancel()
			if err := d.notifier.NotifyRunCompleted(evt.Report); err != nil {
				slog.Warn("Failed to notify run completion", logfields.RunID(evt.Report.RunID), logfields.Error(err))
			}
		}
	}()
}

func (d *Daemon) shutdown() error {
	slog.Info("Daemon shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if err := d.httpServer.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server stop: %w", err))
	}
	if err := d.dispatcher.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher stop: %w", err))
	}

	// Closing the bus ends the run consumer once queued completions
	// have been drained.
	d.bus.Close()
	d.consumerWG.Wait()

	if d.cancelBg != nil {
		d.cancelBg()
	}
	d.notifier.Close()
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("run store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with errors: %v", errs)
	}
	slog.Info("Daemon stopped")
	return nil
}
