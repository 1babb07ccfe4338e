package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/docship/internal/daemon/events"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/metrics"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

// Runner executes one pipeline run for a push event.
type Runner interface {
	Run(ctx context.Context, event trigger.Event, allowPublish bool) (*pipeline.Report, error)
}

// Dispatcher serializes pipeline runs per ref: at most one run is in
// flight for a given ref, and a newer push for the same ref cancels
// the run it supersedes instead of queueing behind it. Runs for
// different refs execute concurrently up to the worker limit.
type Dispatcher struct {
	runner  Runner
	bus     *events.Bus
	rec     metrics.Recorder
	workers chan struct{}

	mu       sync.Mutex
	inflight map[string]*inflightRun
	count    int
	stopping bool
	wg       sync.WaitGroup

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

type inflightRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with the given worker limit.
func NewDispatcher(runner Runner, bus *events.Bus, rec metrics.Recorder, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:     runner,
		bus:        bus,
		rec:        rec,
		workers:    make(chan struct{}, workers),
		inflight:   make(map[string]*inflightRun),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Dispatch schedules a run for the push. If a run for the same ref is
// already in flight it is canceled first; the new run waits for it to
// exit before starting, so per-ref ordering is preserved.
func (d *Dispatcher) Dispatch(push *Push) error {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is stopping")
	}

	prev := d.inflight[push.Ref]
	if prev != nil {
		prev.cancel()
		slog.Info("Superseding in-flight run", logfields.Ref(push.Ref))
	}

	runCtx, cancel := context.WithCancel(d.baseCtx)
	run := &inflightRun{cancel: cancel, done: make(chan struct{})}
	d.inflight[push.Ref] = run
	d.count++
	d.rec.SetRunsInFlight(d.count)
	d.wg.Add(1)
	d.mu.Unlock()

	go d.execute(runCtx, push, run, prev)

	// Published outside the lock so a slow subscriber cannot block
	// other dispatches or run completion.
	if prev != nil {
		d.publishEvent(events.RunSuperseded{Ref: push.Ref, SupersededAt: time.Now()})
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, push *Push, run *inflightRun, prev *inflightRun) {
	defer d.wg.Done()
	defer d.finish(push.Ref, run)

	// The superseded run was canceled above; wait for it to release
	// its worker slot before taking one ourselves.
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return
		}
	}

	select {
	case d.workers <- struct{}{}:
		defer func() { <-d.workers }()
	case <-ctx.Done():
		return
	}

	d.publishEvent(events.RunStarted{Ref: push.Ref, StartedAt: time.Now()})

	event := trigger.Event{Ref: push.Ref, ChangedPaths: push.ChangedPaths}
	report, err := d.runner.Run(ctx, event, true)
	if err != nil {
		slog.Error("Pipeline run failed", logfields.Ref(push.Ref), logfields.Error(err))
	}
	if report != nil {
		d.publishEvent(events.RunCompleted{Report: report, FinishedAt: time.Now()})
	}
}

func (d *Dispatcher) finish(ref string, run *inflightRun) {
	d.mu.Lock()
	if d.inflight[ref] == run {
		delete(d.inflight, ref)
	}
	d.count--
	d.rec.SetRunsInFlight(d.count)
	d.mu.Unlock()
	close(run.done)
}

func (d *Dispatcher) publishEvent(evt any) {
	if d.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.bus.Publish(ctx, evt); err != nil {
		slog.Warn("Failed to publish daemon event", logfields.Error(err))
	}
}

// InFlight returns the number of runs currently executing or waiting
// on a worker slot.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Stop refuses new dispatches and waits for in-flight runs, bounded by
// ctx. When ctx expires the remaining runs are canceled and waited for.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancelBase()
		<-done
		return ctx.Err()
	}
}
