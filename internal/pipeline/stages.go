package pipeline

import "context"

// StageName identifies a pipeline stage.
type StageName string

const (
	StageCheckout   StageName = "checkout"
	StageInstall    StageName = "install"
	StageRender     StageName = "render"
	StagePackage    StageName = "package"
	StagePublish    StageName = "publish"
	StageInvalidate StageName = "invalidate"
)

// StageDef couples a stage name with its implementation.
type StageDef struct {
	Name StageName
	Fn   func(ctx context.Context, st *State) error
}

// Observer receives stage lifecycle callbacks, e.g. for metrics.
type Observer interface {
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, durationMS float64, failed bool)
	OnRunComplete(report *Report)
}
