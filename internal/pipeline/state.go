package pipeline

import (
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

// State carries everything a run accumulates as stages execute.
type State struct {
	RunID    string
	Event    trigger.Event
	Decision trigger.Decision
	// Publishing is true when the publish stages are part of this run
	// (a publishing decision that is not withheld by a dry run).
	Publishing bool

	// WorkDir is this run's private scratch directory.
	WorkDir string
	// CheckoutPath is set by the checkout stage.
	CheckoutPath string
	// SiteDir holds the rendered output tree (version subdir plus
	// manifest and landing page).
	SiteDir string
	// ArtifactPath is set by the package stage.
	ArtifactPath string
	// RestoreDir is where the publish stage unpacks the artifact.
	RestoreDir string

	PublishResult publish.Result

	Report *Report
}
