package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// runStages executes stages in order, recording timing and stopping on
// the first fatal error. Warning-class failures are recorded on the
// report and execution continues.
func runStages(ctx context.Context, st *State, stages []StageDef, obs Observer) error {
	for _, stage := range stages {
		select {
		case <-ctx.Done():
			se := classify(stage.Name, ctx.Err(), true)
			st.Report.AddIssue(stage.Name, se.Kind, se.Err.Error())
			return se
		default:
		}

		if obs != nil {
			obs.OnStageStart(stage.Name)
		}

		t0 := time.Now()
		err := stage.Fn(ctx, st)
		dur := time.Since(t0)
		st.Report.StageDurations[stage.Name] = dur

		if obs != nil {
			obs.OnStageComplete(stage.Name, float64(dur.Milliseconds()), err != nil)
		}

		if err == nil {
			slog.Debug("Stage complete",
				logfields.RunID(st.RunID),
				logfields.Stage(string(stage.Name)),
				logfields.DurationMS(float64(dur.Milliseconds())))
			continue
		}

		se := classify(stage.Name, err, errors.Is(err, context.Canceled))
		st.Report.AddIssue(stage.Name, se.Kind, se.Err.Error())

		if se.Kind == KindWarning {
			slog.Warn("Stage failed (non-fatal)",
				logfields.RunID(st.RunID),
				logfields.Stage(string(stage.Name)),
				logfields.Error(se.Err))
			continue
		}

		slog.Error("Stage failed",
			logfields.RunID(st.RunID),
			logfields.Stage(string(stage.Name)),
			logfields.Error(se.Err))
		return se
	}
	return nil
}
