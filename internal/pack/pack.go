// Package pack loads domain pack manifests. The pipeline reads only the
// safety-relevant fields (requires_auditor, safety_profile, modes); prompt
// templates and knowledge documents ride along for the output layer.
package pack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrPackConfig = errors.New("invalid pack manifest")

// Manifest describes one domain pack.
type Manifest struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name,omitempty" json:"name,omitempty"`
	Version         string   `yaml:"version,omitempty" json:"version,omitempty"`
	Modes           []string `yaml:"modes" json:"modes"`
	ReadingLevels   []string `yaml:"reading_levels,omitempty" json:"reading_levels,omitempty"`
	SafetyProfile   string   `yaml:"safety_profile" json:"safety_profile"`
	RequiresAuditor bool     `yaml:"requires_auditor" json:"requires_auditor"`
	Documents       []string `yaml:"documents,omitempty" json:"documents,omitempty"`
}

// SupportsMode reports whether the pack serves the given mode.
func (m Manifest) SupportsMode(mode string) bool {
	for _, allowed := range m.Modes {
		if allowed == mode {
			return true
		}
	}
	return false
}

func parseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrPackConfig, err)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("%w: missing id", ErrPackConfig)
	}
	if len(m.Modes) == 0 {
		return Manifest{}, fmt.Errorf("%w: pack %q has no modes", ErrPackConfig, m.ID)
	}
	if m.SafetyProfile == "" {
		return Manifest{}, fmt.Errorf("%w: pack %q missing safety_profile", ErrPackConfig, m.ID)
	}
	return m, nil
}

// Registry holds the loaded manifests keyed by pack id.
type Registry struct {
	packs map[string]Manifest
}

// LoadDir reads every *.yaml manifest in a directory. A single malformed
// manifest fails the whole load; no partial registry is ever returned.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read packs dir: %w", err)
	}

	packs := make(map[string]Manifest)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read pack %s: %w", name, err)
		}
		m, err := parseManifest(raw)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", name, err)
		}
		if _, dup := packs[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate pack id %q", ErrPackConfig, m.ID)
		}
		packs[m.ID] = m
	}
	return &Registry{packs: packs}, nil
}

// NewRegistry builds a registry from already-parsed manifests. Tests and
// embedded deployments use this instead of LoadDir.
func NewRegistry(manifests []Manifest) (*Registry, error) {
	packs := make(map[string]Manifest, len(manifests))
	for _, m := range manifests {
		if _, dup := packs[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate pack id %q", ErrPackConfig, m.ID)
		}
		packs[m.ID] = m
	}
	return &Registry{packs: packs}, nil
}

// Get returns the manifest for a pack id.
func (r *Registry) Get(id string) (Manifest, bool) {
	m, ok := r.packs[id]
	return m, ok
}

// IDs returns the loaded pack ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.packs))
	for id := range r.packs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
