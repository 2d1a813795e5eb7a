package adapter

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is the declarative metadata shipped next to an adapter module.
// It is optional on disk; when absent a default is synthesized from the
// service configuration. Immutable once loaded.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	DisplayName string   `json:"display_name,omitempty"` // empty = frontend falls back to Name
	Models      []string `json:"models,omitempty"`        // nil = UI shows a free-text model field
}

// LoadManifest reads and parses a manifest.json file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errf(KindInvalidConfig, "reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, Errf(KindInvalidConfig, "parsing manifest %s: %w", path, err)
	}
	if m.Name == "" || m.Version == "" {
		return nil, Errf(KindInvalidConfig, "manifest %s missing name or version", path)
	}
	return &m, nil
}

// DefaultManifest synthesizes a manifest from configuration values for
// adapters that ship without a manifest.json.
func DefaultManifest(provider, version string) *Manifest {
	return &Manifest{Name: provider, Version: version}
}

func (m *Manifest) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Version)
}
