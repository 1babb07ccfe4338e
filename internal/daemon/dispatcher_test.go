package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docship/internal/daemon/events"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

// blockingRunner records started runs and blocks each one until its
// context is canceled or release is closed.
type blockingRunner struct {
	mu       sync.Mutex
	started  []string
	canceled []string
	release  chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, event trigger.Event, _ bool) (*pipeline.Report, error) {
	r.mu.Lock()
	r.started = append(r.started, event.Ref)
	r.mu.Unlock()

	report := pipeline.NewReport("test-run", event.Ref)
	select {
	case <-ctx.Done():
		r.mu.Lock()
		r.canceled = append(r.canceled, event.Ref)
		r.mu.Unlock()
		report.Status = pipeline.StatusCanceled
		return report, ctx.Err()
	case <-r.release:
		report.Status = pipeline.StatusBuilt
		return report, nil
	}
}

func (r *blockingRunner) startedRefs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func (r *blockingRunner) canceledRefs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.canceled...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatchRunsConcurrentRefs(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, nil, nil, 4)

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
	require.NoError(t, d.Dispatch(&Push{Ref: "refs/tags/concrete-core-1.4.0"}))

	waitFor(t, func() bool { return len(runner.startedRefs()) == 2 })
	assert.Equal(t, 2, d.InFlight())

	close(runner.release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatchSupersedesSameRef(t *testing.T) {
	runner := newBlockingRunner()
	bus := events.NewBus()
	defer bus.Close()
	superseded, unsub := events.Subscribe[events.RunSuperseded](bus, 1)
	defer unsub()

	d := NewDispatcher(runner, bus, nil, 2)

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
	waitFor(t, func() bool { return len(runner.startedRefs()) == 1 })

	// Second push for the same ref cancels the first run.
	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))

	select {
	case evt := <-superseded:
		assert.Equal(t, "refs/heads/main", evt.Ref)
	case <-time.After(2 * time.Second):
		t.Fatal("no supersede event")
	}

	waitFor(t, func() bool { return len(runner.canceledRefs()) == 1 })
	waitFor(t, func() bool { return len(runner.startedRefs()) == 2 })

	close(runner.release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatchSupersedeEventDoesNotBlockRuns(t *testing.T) {
	runner := newBlockingRunner()
	bus := events.NewBus()
	defer bus.Close()
	// Unbuffered and never read until the end: delivery stays pending
	// while the runs make progress.
	superseded, unsub := events.Subscribe[events.RunSuperseded](bus, 0)
	defer unsub()

	d := NewDispatcher(runner, bus, nil, 2)

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
	waitFor(t, func() bool { return len(runner.startedRefs()) == 1 })

	dispatched := make(chan error, 1)
	go func() { dispatched <- d.Dispatch(&Push{Ref: "refs/heads/main"}) }()

	// The replacement run starts even though the supersede event has
	// not been consumed.
	waitFor(t, func() bool { return len(runner.canceledRefs()) == 1 })
	waitFor(t, func() bool { return len(runner.startedRefs()) == 2 })
	assert.Equal(t, 1, d.InFlight())

	evt := <-superseded
	assert.Equal(t, "refs/heads/main", evt.Ref)
	require.NoError(t, <-dispatched)

	close(runner.release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatchPublishesRunCompleted(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	bus := events.NewBus()
	defer bus.Close()
	completed, unsub := events.Subscribe[events.RunCompleted](bus, 1)
	defer unsub()

	d := NewDispatcher(runner, bus, nil, 1)
	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))

	select {
	case evt := <-completed:
		require.NotNil(t, evt.Report)
		assert.Equal(t, "refs/heads/main", evt.Report.Ref)
		assert.Equal(t, pipeline.StatusBuilt, evt.Report.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion event")
	}

	require.NoError(t, d.Stop(context.Background()))
}

func TestWorkerLimitHoldsBackExtraRefs(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, nil, nil, 1)

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
	waitFor(t, func() bool { return len(runner.startedRefs()) == 1 })

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/other"}))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, runner.startedRefs(), 1)
	assert.Equal(t, 2, d.InFlight())

	close(runner.release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestStopRefusesNewWork(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	d := NewDispatcher(runner, nil, nil, 1)
	require.NoError(t, d.Stop(context.Background()))
	require.Error(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
}

func TestStopCancelsOnDeadline(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, nil, nil, 1)

	require.NoError(t, d.Dispatch(&Push{Ref: "refs/heads/main"}))
	waitFor(t, func() bool { return len(runner.startedRefs()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Stop(ctx)
	require.Error(t, err)
	assert.Len(t, runner.canceledRefs(), 1)
}
