package keys

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/proctor/internal/audit"
)

// ErrKeyInvalid is the uniform verification failure. No-match, expired, and
// scope-not-held all surface as this one error; the specific reason goes to
// the audit chain only.
var ErrKeyInvalid = errors.New("key invalid")

// DefaultGrantWindow bounds how long a grant stays usable after issue.
const DefaultGrantWindow = 5 * time.Minute

// Grant is a time-boxed, single-scope authorization issued after successful
// verification. Grants live in memory only; the audit chain keeps the record
// of their use.
type Grant struct {
	GrantID   string    `json:"grant_id"`
	KeyID     string    `json:"key_id"`
	Scope     string    `json:"scope"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidFor reports whether the grant covers the given scope at the given
// instant. Expired grants are never honored.
func (g Grant) ValidFor(scope string, now time.Time) bool {
	return g.GrantID != "" && g.Scope == scope && now.Before(g.ExpiresAt)
}

// Recorder receives one audit entry per verification attempt. Satisfied by
// *audit.Chain.
type Recorder interface {
	Append(entryType audit.EntryType, runID string, payload map[string]any) (uint64, error)
}

// Registry verifies presented secrets against the loaded key records. The
// record set is read-only to the pipeline.
type Registry struct {
	records  []Record
	window   time.Duration
	clock    func() time.Time
	recorder Recorder
}

func NewRegistry(records []Record, window time.Duration, recorder Recorder, clock func() time.Time) *Registry {
	if window <= 0 {
		window = DefaultGrantWindow
	}
	if clock == nil {
		clock = time.Now
	}
	recs := make([]Record, len(records))
	copy(recs, records)
	for i := range recs {
		recs[i].normalize()
	}
	return &Registry{records: recs, window: window, clock: clock, recorder: recorder}
}

// Verify checks the presented secret against every record and, on success,
// issues a grant for the requested scope. The digest comparison visits all
// records without short-circuiting so latency does not reveal which record,
// if any, matched. Every attempt is audited; the secret itself never is.
func (r *Registry) Verify(secret, scope, runID string) (Grant, error) {
	now := r.clock()
	presented := []byte(HashSecret(secret))

	matched := -1
	for i := range r.records {
		eq := subtle.ConstantTimeCompare(presented, []byte(r.records[i].SecretHash))
		matched = subtle.ConstantTimeSelect(eq, i, matched)
	}

	if matched < 0 {
		return Grant{}, r.fail(scope, runID, "", "no_match")
	}

	rec := r.records[matched]
	if rec.Expired(now) {
		return Grant{}, r.fail(scope, runID, rec.ID, "expired")
	}
	if !rec.HoldsScope(scope) {
		return Grant{}, r.fail(scope, runID, rec.ID, "scope_not_held")
	}

	expires := now.Add(r.window)
	if keyExp := rec.Expiry(); !keyExp.IsZero() && keyExp.Before(expires) {
		expires = keyExp
	}

	grant := Grant{
		GrantID:   uuid.NewString(),
		KeyID:     rec.ID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: expires,
	}

	if r.recorder != nil {
		_, err := r.recorder.Append(audit.EntryKeyVerifyOK, runID, map[string]any{
			"key_id":   rec.ID,
			"scope":    scope,
			"grant_id": grant.GrantID,
			"expires":  expires.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return Grant{}, err
		}
	}
	return grant, nil
}

func (r *Registry) fail(scope, runID, keyID, reason string) error {
	if r.recorder != nil {
		payload := map[string]any{
			"scope":  scope,
			"reason": reason,
		}
		if keyID != "" {
			payload["key_id"] = keyID
		}
		if _, err := r.recorder.Append(audit.EntryKeyVerifyFailed, runID, payload); err != nil {
			return err
		}
	}
	return ErrKeyInvalid
}
