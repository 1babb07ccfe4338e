package metrics

import (
	"time"

	"git.home.luguber.info/inful/docship/internal/pipeline"
)

// RunObserver bridges pipeline stage callbacks onto a Recorder.
type RunObserver struct {
	rec Recorder
}

// NewRunObserver wraps a Recorder as a pipeline.Observer.
func NewRunObserver(rec Recorder) *RunObserver {
	if rec == nil {
		rec = NoopRecorder{}
	}
	return &RunObserver{rec: rec}
}

func (o *RunObserver) OnStageStart(pipeline.StageName) {}

func (o *RunObserver) OnStageComplete(stage pipeline.StageName, durationMS float64, failed bool) {
	o.rec.ObserveStageDuration(string(stage), time.Duration(durationMS*float64(time.Millisecond)))
	result := ResultSuccess
	if failed {
		result = ResultFailed
	}
	o.rec.IncStageResult(string(stage), result)
}

func (o *RunObserver) OnRunComplete(report *pipeline.Report) {
	o.rec.ObserveRunDuration(report.Duration())
	o.rec.IncRunOutcome(string(report.Status))
	o.rec.AddObjectsPublished(report.ObjectsWritten)
}
