package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ManifestFileName is the version index published at the prefix root.
const ManifestFileName = "versions.json"

// Manifest is the version index consumed by the version switcher on
// the published site.
type Manifest struct {
	Latest   string   `json:"latest,omitempty"`
	Versions []string `json:"versions"`
}

// ReadManifest loads a manifest from disk. A missing file yields an
// empty manifest rather than an error so the first publish bootstraps
// cleanly.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read version manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse version manifest: %w", err)
	}
	return &m, nil
}

// Add records a version in the manifest. Adding an existing version is
// a no-op so republishing a version never duplicates entries. When
// latest is true the version also becomes the manifest's latest.
func (m *Manifest) Add(version string, latest bool) {
	found := false
	for _, v := range m.Versions {
		if v == version {
			found = true
			break
		}
	}
	if !found {
		m.Versions = append(m.Versions, version)
		sort.Strings(m.Versions)
	}
	if latest || m.Latest == "" {
		m.Latest = version
	}
}

// WriteFile persists the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write version manifest: %w", err)
	}
	return nil
}
