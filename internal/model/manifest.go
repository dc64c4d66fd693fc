package model

import "time"

// ManifestFileName is the manifest written into the staging root during
// capture and carried inside every archive.
const ManifestFileName = "manifest.json"

// Manifest describes one point-in-time capture: which components were
// extracted, how large they were, and whether any of them were empty.
type Manifest struct {
	Context    string              `json:"context"`
	RunID      string              `json:"run_id"`
	CreatedAt  time.Time           `json:"created_at"`
	Components []ComponentManifest `json:"components"`
}

// ComponentManifest records the extraction result for a single component.
type ComponentManifest struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SizeBytes  int64  `json:"size_bytes"`
	FileCount  int    `json:"file_count"`
	Empty      bool   `json:"empty"`
	DurationMS int64  `json:"duration_ms"`
}

// Component returns the manifest entry for a component name, or nil.
func (m *Manifest) Component(name string) *ComponentManifest {
	for i := range m.Components {
		if m.Components[i].Name == name {
			return &m.Components[i]
		}
	}
	return nil
}
