package audit

import (
	"github.com/davidahmann/proctor/internal/crypto"
)

type EntryType string

const (
	EntryStartup        EntryType = "startup"
	EntryPolicyLoaded   EntryType = "policy_loaded"
	EntryPolicyReloaded EntryType = "policy_reloaded"
	EntryModeChanged    EntryType = "mode_changed"

	EntryPipelineReceived EntryType = "pipeline_received"
	EntryPolicyChecked    EntryType = "policy_checked"
	EntryPolicyDenied     EntryType = "policy_denied"
	EntryWorkerComplete   EntryType = "worker_complete"
	EntryAuditorComplete  EntryType = "auditor_complete"
	EntryAuditorSkipped   EntryType = "auditor_skipped"
	EntryResolverDecision EntryType = "resolver_decision"
	EntryOverrideUsed     EntryType = "override_used"
	EntryDelivered        EntryType = "pipeline_delivered"
	EntryAborted          EntryType = "pipeline_aborted"

	EntryKeyVerifyOK     EntryType = "key_verify_ok"
	EntryKeyVerifyFailed EntryType = "key_verify_failed"

	EntryEscalationQueued EntryType = "escalation_queued"
	EntryEscalationSent   EntryType = "escalation_sent"
)

// GenesisHash seeds the chain before the first entry.
const GenesisHash = "genesis"

// Entry is one link of the hash chain. Entries are never mutated once
// written; the payload is already redacted.
type Entry struct {
	Seq       uint64         `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Type      EntryType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// ComputeHash derives the entry's chain hash:
// sha256(prev_hash || canonical(seq, timestamp, type, run_id, payload)).
func ComputeHash(e Entry) (string, error) {
	view := map[string]any{
		"seq":       e.Seq,
		"timestamp": e.Timestamp,
		"type":      string(e.Type),
		"payload":   e.Payload,
	}
	if e.RunID != "" {
		view["run_id"] = e.RunID
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return "", err
	}
	return crypto.ChainDigest(e.PrevHash, canonical), nil
}
