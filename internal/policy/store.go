package policy

import (
	"fmt"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Store hands out immutable policy snapshots. Reload validates the candidate
// document fully off to the side and then swaps a single pointer, so readers
// never observe a half-applied document; on failure the last valid snapshot
// stays active.
type Store struct {
	path    string
	clock   func() time.Time
	current atomic.Pointer[Snapshot]
}

func NewStore(path string, clock func() time.Time) (*Store, error) {
	if clock == nil {
		clock = time.Now
	}
	s := &Store{path: path, clock: clock}
	snap, err := Load(path, clock())
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// NewStoreFromSnapshot wires a store around an already-validated snapshot.
func NewStoreFromSnapshot(snap *Snapshot) *Store {
	s := &Store{clock: time.Now}
	s.current.Store(snap)
	return s
}

// Snapshot returns the current policy snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the policy path. In-flight runs keep the snapshot they
// already fetched.
func (s *Store) Reload() (*Snapshot, error) {
	if s.path == "" {
		return nil, fmt.Errorf("store has no backing path")
	}
	snap, err := Load(s.path, s.clock())
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}

// SwitchMode activates the target mode. The modified document goes through
// full validation before the swap, so an illegal target never becomes active.
func (s *Store) SwitchMode(target string) (*Snapshot, error) {
	doc := s.Snapshot().Document
	doc.Mode.Current = target
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	snap, err := Parse(raw, s.clock())
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}

// EnsureModuleToggles fails when a pack references a module with no toggle
// entry in the active document.
func (s *Store) EnsureModuleToggles(moduleIDs []string) error {
	doc := s.Snapshot().Document
	for _, id := range moduleIDs {
		if _, ok := doc.Modules[id]; !ok {
			return fmt.Errorf("%w: module %q has no toggle entry", ErrSchema, id)
		}
	}
	return nil
}

// --- point queries on a snapshot ---

func (s *Snapshot) IsEnabled(moduleID string) bool {
	toggle, ok := s.Document.Modules[moduleID]
	return ok && toggle.Enabled && toggle.Loaded
}

func (s *Snapshot) CurrentMode() string {
	return s.Document.Mode.Current
}

func (s *Snapshot) ModeAllowed(mode string) bool {
	for _, allowed := range s.Document.Mode.Allowed {
		if allowed == mode {
			return true
		}
	}
	return false
}

// CanUseModule evaluates whether a request addressed to moduleID may proceed.
func (s *Snapshot) CanUseModule(moduleID string) Evaluation {
	toggle, ok := s.Document.Modules[moduleID]
	if !ok {
		return Evaluation{Reason: fmt.Sprintf("module %q not configured", moduleID)}
	}
	if !toggle.Enabled {
		return Evaluation{Reason: fmt.Sprintf("module %q is disabled", moduleID)}
	}
	if !toggle.Loaded {
		return Evaluation{Reason: fmt.Sprintf("module %q is not loaded", moduleID)}
	}
	return Evaluation{Allowed: true}
}

// CanSwitchMode evaluates whether the device may switch to the target mode.
func (s *Snapshot) CanSwitchMode(target string) Evaluation {
	if !s.ModeAllowed(target) {
		return Evaluation{Reason: fmt.Sprintf("mode %q not in allowed modes", target)}
	}
	eval := Evaluation{Allowed: true}
	if s.Document.Mode.SwitchRequiresKey {
		eval.RequiresKey = true
		eval.KeyScope = s.Document.Mode.SwitchKeyScope
	}
	return eval
}

// CanOverrideSafety evaluates whether a rejected response may be overridden.
func (s *Snapshot) CanOverrideSafety() Evaluation {
	if !s.Document.Safety.AllowOverrideOnConflict {
		return Evaluation{Reason: "safety overrides are disabled"}
	}
	eval := Evaluation{Allowed: true}
	if s.Document.Safety.OverrideRequiresKey {
		eval.RequiresKey = true
		eval.KeyScope = s.Document.Safety.OverrideKeyScope
	}
	return eval
}

func (s *Snapshot) RequiresAuditor() bool {
	return s.Document.Safety.RequireAuditor
}

func (s *Snapshot) AuditorStrict() bool {
	return s.Document.Safety.AuditorStrict
}

func (s *Snapshot) MinConfidence() float64 {
	return s.Document.Safety.MinConfidence
}

func (s *Snapshot) AllowOverrideOnConflict() bool {
	return s.Document.Safety.AllowOverrideOnConflict
}

func (s *Snapshot) RedactionLevel() string {
	return s.Document.Safety.RedactionLevel
}

// OverrideScopeFor maps an override-worthy action to the key scope that
// unlocks it.
func (s *Snapshot) OverrideScopeFor(action string) string {
	switch action {
	case ActionModeSwitch:
		return s.Document.Mode.SwitchKeyScope
	case ActionSafetyOverride:
		return s.Document.Safety.OverrideKeyScope
	default:
		return ""
	}
}
