package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docship/internal/builder"
	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/invalidate"
	"git.home.luguber.info/inful/docship/internal/publish"
	"git.home.luguber.info/inful/docship/internal/trigger"
)

type fakeSource struct {
	calls int
	fail  bool
}

func (f *fakeSource) Checkout(_ context.Context, _, _, dirName string) (string, error) {
	f.calls++
	if f.fail {
		return "", fmt.Errorf("injected checkout failure")
	}
	dir := filepath.Join(os.TempDir(), "docship-test-checkout")
	return dir, os.MkdirAll(dir, 0o750)
}

type fakeBuilder struct {
	installs   int
	renders    int
	failRender bool
}

func (f *fakeBuilder) Install(context.Context, string) error {
	f.installs++
	return nil
}

func (f *fakeBuilder) Render(_ context.Context, _, outDir, version string) error {
	f.renders++
	if f.failRender {
		return fmt.Errorf("injected render failure")
	}
	versionDir := filepath.Join(outDir, version)
	if err := os.MkdirAll(versionDir, 0o750); err != nil {
		return err
	}
	index := `<html><head><title>docs</title></head><body>ok</body></html>`
	if err := os.WriteFile(filepath.Join(versionDir, "index.html"), []byte(index), 0o600); err != nil {
		return err
	}
	manifest, err := builder.ReadManifest(filepath.Join(outDir, builder.ManifestFileName))
	if err != nil {
		return err
	}
	manifest.Add(version, false)
	if err := manifest.WriteFile(filepath.Join(outDir, builder.ManifestFileName)); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "index.html"), []byte(index), 0o600)
}

type fakeSyncer struct {
	calls     int
	fail      bool
	seen      []string
	lastRoot  string
	fetches   int
	manifest  []byte
	fetchErr  error
	published map[string][]byte
}

func (f *fakeSyncer) FetchManifest(context.Context) ([]byte, error) {
	f.fetches++
	return f.manifest, f.fetchErr
}

func (f *fakeSyncer) Sync(_ context.Context, srcDir string) (publish.Result, error) {
	f.calls++
	f.lastRoot = srcDir
	if f.fail {
		return publish.Result{ObjectsWritten: 1}, fmt.Errorf("injected sync failure")
	}
	if f.published == nil {
		f.published = make(map[string][]byte)
	}
	var res publish.Result
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(srcDir, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f.seen = append(f.seen, filepath.ToSlash(rel))
		f.published[filepath.ToSlash(rel)] = data
		res.ObjectsWritten++
		return nil
	})
	return res, err
}

type fakeInvalidator struct {
	calls    int
	fail     bool
	prefixes []string
}

func (f *fakeInvalidator) InvalidatePrefix(_ context.Context, prefix string) (*invalidate.Response, error) {
	f.calls++
	f.prefixes = append(f.prefixes, prefix)
	if f.fail {
		return nil, fmt.Errorf("injected invalidation failure")
	}
	return &invalidate.Response{InvalidationID: "inv-1"}, nil
}

type recordingObserver struct {
	stages   []StageName
	reports  []*Report
	finished []time.Time
}

func (r *recordingObserver) OnStageStart(StageName) {}
func (r *recordingObserver) OnStageComplete(s StageName, _ float64, _ bool) {
	r.stages = append(r.stages, s)
}

func (r *recordingObserver) OnRunComplete(rep *Report) {
	r.reports = append(r.reports, rep)
	r.finished = append(r.finished, rep.FinishedAt)
}

type testHarness struct {
	pipeline    *Pipeline
	cfg         *config.Config
	source      *fakeSource
	builder     *fakeBuilder
	syncer      *fakeSyncer
	invalidator *fakeInvalidator
	observer    *recordingObserver
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	cfg := &config.Config{
		Project: config.Project{
			ID:             "concrete-core",
			RepoURL:        "https://example.com/concrete-core.git",
			DefaultBranch:  "main",
			DocsDir:        "docs",
			TagPrefix:      "concrete-core-",
			DefaultVersion: "main",
		},
		Build: config.Build{
			WorkDir:     t.TempDir(),
			ArtifactDir: t.TempDir(),
			Timeout:     30 * time.Second,
		},
		Bucket: config.Bucket{DestPrefix: "concrete-core"},
	}

	h := &testHarness{
		cfg:         cfg,
		source:      &fakeSource{},
		builder:     &fakeBuilder{},
		syncer:      &fakeSyncer{},
		invalidator: &fakeInvalidator{},
		observer:    &recordingObserver{},
	}

	p, err := New(cfg,
		WithSource(h.source),
		WithBuilder(h.builder),
		WithSyncer(h.syncer),
		WithInvalidator(h.invalidator),
		WithObserver(h.observer),
	)
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func TestRunReleaseTagPublishesAndInvalidates(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, report.Status)
	require.Equal(t, "1.4.0", report.Version)

	require.Equal(t, []StageName{
		StageCheckout, StageInstall, StageRender, StagePackage, StagePublish, StageInvalidate,
	}, h.observer.stages)

	// Published content came from the unpacked artifact.
	require.Contains(t, h.syncer.seen, "1.4.0/index.html")
	require.Contains(t, h.syncer.seen, "versions.json")
	require.Contains(t, h.syncer.seen, "index.html")

	require.Equal(t, []string{"concrete-core"}, h.invalidator.prefixes)
	require.Equal(t, 3, report.ObjectsWritten)
}

func TestRunFeatureBranchBuildsWithoutPublishing(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{
		Ref:          "refs/heads/feature/x",
		ChangedPaths: []string{"docs/a.rst"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, report.Status)
	require.Zero(t, h.syncer.calls)
	require.Zero(t, h.invalidator.calls)
}

func TestRunSkippedWhenDocsUntouched(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"src/lib.rs"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, report.Status)
	require.Zero(t, h.source.calls)
	require.Zero(t, h.builder.renders)
}

func TestRunRenderFailureNeverPublishes(t *testing.T) {
	h := newHarness(t)
	h.builder.failRender = true

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Zero(t, h.syncer.calls)
	require.Zero(t, h.invalidator.calls)
}

func TestRunPublishFailureSkipsInvalidation(t *testing.T) {
	h := newHarness(t)
	h.syncer.fail = true

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Zero(t, h.invalidator.calls)
	// The partial sync is reported, not rolled back.
	require.Equal(t, 1, report.ObjectsWritten)
}

func TestRunInvalidationFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.invalidator.fail = true

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, report.Status)
	require.True(t, report.HasWarnings())
}

func TestRunDryRunWithholdsPublish(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, false)
	require.NoError(t, err)
	require.Equal(t, StatusBuilt, report.Status)
	require.Zero(t, h.syncer.calls)
	// A dry run never touches the bucket, not even for the manifest.
	require.Zero(t, h.syncer.fetches)
}

func TestRunCanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.pipeline.Run(ctx, trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.Error(t, err)
	require.Equal(t, StatusCanceled, report.Status)
}

func TestRunSecondPublishKeepsEarlierVersions(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)
	require.NotEmpty(t, h.syncer.published[builder.ManifestFileName])

	// The next run sees what the first one published.
	h.syncer.manifest = h.syncer.published[builder.ManifestFileName]

	_, err = h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.5.0"}, true)
	require.NoError(t, err)

	var m builder.Manifest
	require.NoError(t, json.Unmarshal(h.syncer.published[builder.ManifestFileName], &m))
	require.ElementsMatch(t, []string{"1.4.0", "1.5.0"}, m.Versions)
}

func TestRunManifestFetchFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.syncer.fetchErr = fmt.Errorf("injected fetch failure")

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.Error(t, err)
	require.Equal(t, StatusFailed, report.Status)
	require.Zero(t, h.syncer.calls)
}

func TestRunReportFinishedBeforeObserver(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)

	require.Len(t, h.observer.finished, 1)
	require.False(t, h.observer.finished[0].IsZero())
	require.GreaterOrEqual(t, h.observer.reports[0].Duration(), time.Duration(0))
}

func TestRunSkippedReportIsFinished(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"src/lib.rs"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, report.Status)
	require.False(t, report.FinishedAt.IsZero())
}

func TestRunCleansUpPackagedArtifact(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)

	entries, err := os.ReadDir(h.cfg.Build.ArtifactDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	workEntries, err := os.ReadDir(h.cfg.Build.WorkDir)
	require.NoError(t, err)
	require.Empty(t, workEntries)
}

func TestRunRecordsStageDurations(t *testing.T) {
	h := newHarness(t)

	report, err := h.pipeline.Run(context.Background(), trigger.Event{Ref: "refs/tags/concrete-core-1.4.0"}, true)
	require.NoError(t, err)
	for _, stage := range []StageName{StageCheckout, StageInstall, StageRender, StagePackage, StagePublish, StageInvalidate} {
		require.Contains(t, report.StageDurations, stage)
	}
}
