// Package keys holds the override key registry: hashed credentials with
// scopes and expiry, verified in constant time, issuing short-lived grants.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/proctor/internal/crypto"
)

// ScopeAll is the wildcard scope. A key holding it may override any action.
const ScopeAll = "*"

var ErrKeyConfig = errors.New("invalid key registry document")

// Record is one administrative key. The plaintext secret is never stored,
// only its digest.
type Record struct {
	ID          string   `yaml:"id" json:"id"`
	SecretHash  string   `yaml:"secret_hash" json:"secret_hash"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	ExpiresAt   string   `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`

	expiry        time.Time
	expiryInvalid bool
}

// normalize parses the expiry once so verification never does string work
// that varies with the failure reason.
func (r *Record) normalize() {
	if r.ExpiresAt == "" {
		return
	}
	exp, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		r.expiryInvalid = true
		return
	}
	r.expiry = exp
}

// Expired reports whether the record's own expiry has passed. Records with
// no expiry never expire; an unparseable expiry fails closed.
func (r Record) Expired(now time.Time) bool {
	if r.expiryInvalid {
		return true
	}
	return !r.expiry.IsZero() && !now.Before(r.expiry)
}

// Expiry returns the parsed expiry, zero when the record has none.
func (r Record) Expiry() time.Time {
	return r.expiry
}

// HoldsScope reports whether the record's scope set contains the requested
// scope or the wildcard.
func (r Record) HoldsScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == ScopeAll || s == scope {
			return true
		}
	}
	return false
}

type registryFile struct {
	Keys []Record `yaml:"keys"`
}

// LoadFile reads and validates a key registry document.
func LoadFile(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key registry: %w", err)
	}
	return Parse(raw)
}

// Parse validates a key registry document. Malformed documents fail closed;
// no partial registry is ever returned.
func Parse(raw []byte) ([]Record, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyConfig, err)
	}

	seen := make(map[string]struct{}, len(file.Keys))
	for i, rec := range file.Keys {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: key %d missing id", ErrKeyConfig, i)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate key id %q", ErrKeyConfig, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		if !strings.HasPrefix(rec.SecretHash, "sha256:") {
			return nil, fmt.Errorf("%w: key %q secret_hash must be sha256-prefixed", ErrKeyConfig, rec.ID)
		}
		if len(rec.Scopes) == 0 {
			return nil, fmt.Errorf("%w: key %q has no scopes", ErrKeyConfig, rec.ID)
		}
		for _, scope := range rec.Scopes {
			if scope == "" {
				return nil, fmt.Errorf("%w: key %q has empty scope", ErrKeyConfig, rec.ID)
			}
		}
		file.Keys[i].normalize()
		if file.Keys[i].expiryInvalid {
			return nil, fmt.Errorf("%w: key %q expires_at is not RFC3339", ErrKeyConfig, rec.ID)
		}
	}
	return file.Keys, nil
}

// HashSecret digests a plaintext secret for storage in the registry.
func HashSecret(secret string) string {
	return crypto.DigestWithPrefix([]byte(secret))
}

// GenerateSecret produces a new random secret for administrative key
// provisioning. 32 bytes of entropy, hex-encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
