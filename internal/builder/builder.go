// Package builder renders the documentation source tree to a
// version-labeled HTML output directory.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Builder drives the external documentation generator.
type Builder struct {
	cfg *config.Config
}

// New creates a builder for the given configuration.
func New(cfg *config.Config) *Builder { return &Builder{cfg: cfg} }

// Install runs the dependency install step inside the checkout. A
// missing requirements manifest in the config disables the step; a
// configured manifest that does not exist in the checkout is an error.
func (b *Builder) Install(ctx context.Context, repoPath string) error {
	if b.cfg.Build.Requirements == "" && len(b.cfg.Build.InstallCommand) == 0 {
		slog.Debug("No dependency manifest configured; skipping install step")
		return nil
	}

	argv := b.cfg.Build.InstallCommand
	if len(argv) == 0 {
		manifest := filepath.Join(repoPath, b.cfg.Build.Requirements)
		if _, err := os.Stat(manifest); err != nil {
			return fmt.Errorf("dependency manifest not found: %w", err)
		}
		argv = []string{"pip", "install", "-r", b.cfg.Build.Requirements}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = repoPath
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	slog.Info("Installing documentation dependencies", logfields.Path(repoPath), slog.Any("command", argv))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dependency install failed: %w", err)
	}
	return nil
}

// Render invokes the documentation generator against the source
// directory of the checkout, writing HTML under outDir/version. It
// then places the versions manifest and landing page at the output
// root, matching the published bucket layout.
func (b *Builder) Render(ctx context.Context, repoPath, outDir, version string) error {
	if version == "" {
		return fmt.Errorf("release version must not be empty")
	}

	sourceDir := filepath.Join(repoPath, b.cfg.Build.SourceDir)
	if fi, err := os.Stat(sourceDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("documentation source directory missing: %s", sourceDir)
	}

	versionDir := filepath.Join(outDir, version)
	if err := os.MkdirAll(versionDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	argv := append([]string{}, b.cfg.Build.ToolArgs...)
	argv = append(argv, sourceDir, versionDir)

	cmd := exec.CommandContext(ctx, b.cfg.Build.Tool, argv...)
	cmd.Dir = repoPath
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	slog.Info("Rendering documentation",
		logfields.Version(version),
		logfields.Path(versionDir),
		slog.String("tool", b.cfg.Build.Tool))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("documentation render failed: %w", err)
	}

	if err := b.writeManifest(outDir, version); err != nil {
		return err
	}
	return b.writeLandingPage(repoPath, outDir)
}

// writeManifest merges the freshly built version into any manifest
// already present at the output root.
func (b *Builder) writeManifest(outDir, version string) error {
	manifestPath := filepath.Join(outDir, ManifestFileName)

	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return err
	}
	manifest.Add(version, version == b.cfg.Project.DefaultVersion)

	if err := manifest.WriteFile(manifestPath); err != nil {
		return err
	}
	slog.Debug("Wrote version manifest", logfields.Path(manifestPath), slog.Int("versions", len(manifest.Versions)))
	return nil
}
