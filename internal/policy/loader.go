package policy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/davidahmann/proctor/internal/crypto"
	"gopkg.in/yaml.v3"
)

var ErrSchema = errors.New("policy document failed validation")

// Snapshot is one fully-validated policy document plus its provenance. A
// pipeline run holds the snapshot it started with for its whole lifetime.
type Snapshot struct {
	Document Document
	Hash     string
	Raw      []byte
	LoadedAt string
}

// Parse validates raw YAML bytes and builds a Snapshot. A document that fails
// either schema or consistency validation never becomes a Snapshot.
func Parse(raw []byte, now time.Time) (*Snapshot, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	normalize(&doc)

	if err := validateConsistency(doc); err != nil {
		return nil, err
	}

	return &Snapshot{
		Document: doc,
		Hash:     crypto.DigestWithPrefix(raw),
		Raw:      raw,
		LoadedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

// Load reads and validates a policy document from disk.
func Load(path string, now time.Time) (*Snapshot, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, now)
}
