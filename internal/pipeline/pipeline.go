// Package pipeline orchestrates one publish run: checkout, install,
// render, package, publish, invalidate, each stage gated by the
// success of the previous one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docship/internal/artifact"
	"git.home.luguber.info/inful/docship/internal/builder"
	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/gitrepo"
	"git.home.luguber.info/inful/docship/internal/invalidate"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

// Source checks out the repository at a ref.
type Source interface {
	Checkout(ctx context.Context, url, ref, dirName string) (string, error)
}

// DocBuilder installs dependencies and renders the documentation.
type DocBuilder interface {
	Install(ctx context.Context, repoPath string) error
	Render(ctx context.Context, repoPath, outDir, version string) error
}

// Syncer mirrors a tree into the bucket and serves the currently
// published version manifest.
type Syncer interface {
	Sync(ctx context.Context, srcDir string) (publish.Result, error)
	// FetchManifest returns the published version index, or nil when
	// none exists yet.
	FetchManifest(ctx context.Context) ([]byte, error)
}

// Invalidator evicts cached content under the destination prefix.
type Invalidator interface {
	InvalidatePrefix(ctx context.Context, destPrefix string) (*invalidate.Response, error)
}

// Pipeline wires the stages together for a configured project.
type Pipeline struct {
	cfg         *config.Config
	source      Source
	builder     DocBuilder
	store       *artifact.Store
	syncer      Syncer
	invalidator Invalidator
	observer    Observer
}

// Option customizes pipeline construction, mainly for tests.
type Option func(*Pipeline)

// WithSource replaces the git checkout implementation.
func WithSource(s Source) Option { return func(p *Pipeline) { p.source = s } }

// WithBuilder replaces the documentation builder.
func WithBuilder(b DocBuilder) Option { return func(p *Pipeline) { p.builder = b } }

// WithSyncer replaces the bucket publisher.
func WithSyncer(s Syncer) Option { return func(p *Pipeline) { p.syncer = s } }

// WithInvalidator replaces the CDN client.
func WithInvalidator(i Invalidator) Option { return func(p *Pipeline) { p.invalidator = i } }

// WithObserver attaches a stage observer.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// New assembles a pipeline from configuration. The bucket publisher is
// constructed eagerly so credential problems surface before any run.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:     cfg,
		source:  gitrepo.NewClient(cfg.Build.WorkDir),
		builder: builder.New(cfg),
		store:   artifact.NewStore(cfg.Build.ArtifactDir),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.syncer == nil {
		pub, err := publish.New(cfg.Bucket)
		if err != nil {
			return nil, err
		}
		p.syncer = pub
	}
	if p.invalidator == nil {
		if c := invalidate.NewClient(cfg.CDN); c != nil {
			p.invalidator = c
		}
	}
	return p, nil
}

// Rules returns the trigger rules derived from the configuration.
func (p *Pipeline) Rules() trigger.Rules {
	return trigger.Rules{
		DocsDir:        p.cfg.Project.DocsDir,
		DefaultBranch:  p.cfg.Project.DefaultBranch,
		TagPrefix:      p.cfg.Project.TagPrefix,
		DefaultVersion: p.cfg.Project.DefaultVersion,
	}
}

// Run executes the pipeline for one push event. The returned report is
// always non-nil; the error mirrors the report's failure state. When
// allowPublish is false the publish and invalidate stages are withheld
// regardless of the trigger decision (dry runs).
func (p *Pipeline) Run(ctx context.Context, event trigger.Event, allowPublish bool) (*Report, error) {
	runID := uuid.NewString()
	report := NewReport(runID, event.Ref)

	decision := trigger.Evaluate(p.Rules(), event)
	report.Version = decision.Version
	report.Reason = decision.Reason

	if !decision.ShouldBuild {
		report.Status = StatusSkipped
		report.Finish()
		slog.Info("Run skipped", logfields.RunID(runID), logfields.Ref(event.Ref), slog.String("reason", decision.Reason))
		return report, nil
	}

	publishing := decision.ShouldPublish && allowPublish
	runDir := filepath.Join(p.cfg.Build.WorkDir, runID)
	st := &State{
		RunID:      runID,
		Event:      event,
		Decision:   decision,
		Publishing: publishing,
		WorkDir:    runDir,
		SiteDir:    filepath.Join(runDir, "site"),
		RestoreDir: filepath.Join(runDir, "restore"),
		Report:     report,
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			slog.Warn("Failed to clean up run directory", logfields.RunID(runID), logfields.Error(err))
		}
		if err := p.store.Remove(runID); err != nil {
			slog.Warn("Failed to clean up run artifact", logfields.RunID(runID), logfields.Error(err))
		}
	}()

	stages := p.stagesFor(publishing)

	slog.Info("Run started",
		logfields.RunID(runID),
		logfields.Ref(event.Ref),
		logfields.Version(decision.Version),
		slog.Bool("publishing", publishing))

	err := runStages(ctx, st, stages, p.observer)
	report.ObjectsWritten = st.PublishResult.ObjectsWritten

	switch {
	case err == nil && publishing:
		report.Status = StatusPublished
	case err == nil:
		report.Status = StatusBuilt
	default:
		var se *StageError
		if errors.As(err, &se) && se.Kind == KindCanceled {
			report.Status = StatusCanceled
		} else {
			report.Status = StatusFailed
		}
	}

	report.Finish()
	if p.observer != nil {
		p.observer.OnRunComplete(report)
	}

	slog.Info("Run finished",
		logfields.RunID(runID),
		logfields.Ref(event.Ref),
		slog.String("status", string(report.Status)),
		slog.Int("objects", report.ObjectsWritten),
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
	return report, err
}

// stagesFor builds the stage list. Publish and invalidate only appear
// when the run is actually publishing, so the gating is structural
// rather than conditional logic inside stages.
func (p *Pipeline) stagesFor(publishing bool) []StageDef {
	stages := []StageDef{
		{Name: StageCheckout, Fn: p.stageCheckout},
		{Name: StageInstall, Fn: p.stageInstall},
		{Name: StageRender, Fn: p.stageRender},
		{Name: StagePackage, Fn: p.stagePackage},
	}
	if publishing {
		stages = append(stages, StageDef{Name: StagePublish, Fn: p.stagePublish})
		if p.invalidator != nil {
			stages = append(stages, StageDef{Name: StageInvalidate, Fn: p.stageInvalidate})
		}
	}
	return stages
}

func (p *Pipeline) stageCheckout(ctx context.Context, st *State) error {
	path, err := p.source.Checkout(ctx, p.cfg.Project.RepoURL, st.Event.Ref, filepath.Join(st.RunID, "checkout"))
	if err != nil {
		return err
	}
	st.CheckoutPath = path
	return nil
}

func (p *Pipeline) stageInstall(ctx context.Context, st *State) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Build.Timeout)
	defer cancel()
	return p.builder.Install(ctx, st.CheckoutPath)
}

func (p *Pipeline) stageRender(ctx context.Context, st *State) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Build.Timeout)
	defer cancel()
	if err := p.seedManifest(ctx, st); err != nil {
		return err
	}
	if err := p.builder.Render(ctx, st.CheckoutPath, st.SiteDir, st.Decision.Version); err != nil {
		return err
	}
	return builder.ValidateOutput(st.SiteDir, st.Decision.Version)
}

// seedManifest places the currently published version index into the
// site directory before rendering, so the manifest written for this
// run merges with it instead of replacing it with a single entry.
func (p *Pipeline) seedManifest(ctx context.Context, st *State) error {
	if !st.Publishing {
		return nil
	}
	data, err := p.syncer.FetchManifest(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch published version manifest: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(st.SiteDir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(st.SiteDir, builder.ManifestFileName), data, 0o644)
}

func (p *Pipeline) stagePackage(_ context.Context, st *State) error {
	path, err := p.store.Save(p.cfg.ArtifactName(), st.RunID, st.SiteDir)
	if err != nil {
		return err
	}
	st.ArtifactPath = path
	return nil
}

func (p *Pipeline) stagePublish(ctx context.Context, st *State) error {
	// The publisher consumes the packaged artifact, never the raw
	// build tree: what lands in the bucket is exactly what the
	// artifact preserved.
	if err := p.store.Extract(p.cfg.ArtifactName(), st.RunID, st.RestoreDir); err != nil {
		return err
	}
	res, err := p.syncer.Sync(ctx, st.RestoreDir)
	st.PublishResult = res
	return err
}

func (p *Pipeline) stageInvalidate(ctx context.Context, st *State) error {
	if _, err := p.invalidator.InvalidatePrefix(ctx, p.cfg.Bucket.DestPrefix); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	return nil
}
