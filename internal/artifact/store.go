package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Store keeps packaged artifacts on local disk between the build and
// publish stages. Artifacts are keyed by name and run ID; each run
// writes exactly one archive and the publisher consumes it once.
type Store struct {
	dir string
}

// NewStore creates an artifact store rooted at dir.
func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) archivePath(name, runID string) string {
	return filepath.Join(s.dir, runID, name+".tar.gz")
}

// Save packages srcDir under the given artifact name and run ID,
// returning the archive path.
func (s *Store) Save(name, runID, srcDir string) (string, error) {
	if name == "" || runID == "" {
		return "", fmt.Errorf("artifact name and run ID are required")
	}
	path := s.archivePath(name, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	if err := Pack(srcDir, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize artifact file: %w", err)
	}

	slog.Info("Artifact packaged", logfields.Artifact(name), logfields.RunID(runID), logfields.Path(path))
	return path, nil
}

// Extract restores a stored artifact into dstDir.
func (s *Store) Extract(name, runID, dstDir string) error {
	path := s.archivePath(name, runID)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("artifact not found: %w", err)
	}
	defer f.Close()
	return Unpack(f, dstDir)
}

// Remove deletes a run's artifacts. Missing artifacts are not an error.
func (s *Store) Remove(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}
	return os.RemoveAll(filepath.Join(s.dir, runID))
}
