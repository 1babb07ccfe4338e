package pipeline

import "fmt"

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindFatal aborts the run; later stages never execute.
	KindFatal ErrorKind = "fatal"
	// KindWarning is recorded but the run proceeds. Only cache
	// invalidation produces warnings: a failed invalidation leaves
	// stale cached content, not a broken publish.
	KindWarning ErrorKind = "warning"
	// KindCanceled marks a run superseded or shut down mid-flight.
	KindCanceled ErrorKind = "canceled"
)

// StageError wraps a stage failure with its classification.
type StageError struct {
	Stage StageName
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// classify wraps a raw stage error. Invalidation failures are
// warnings; everything else is fatal. Context cancellation always
// wins over other classification.
func classify(stage StageName, err error, canceled bool) *StageError {
	if canceled {
		return &StageError{Stage: stage, Kind: KindCanceled, Err: err}
	}
	if stage == StageInvalidate {
		return &StageError{Stage: stage, Kind: KindWarning, Err: err}
	}
	return &StageError{Stage: stage, Kind: KindFatal, Err: err}
}
