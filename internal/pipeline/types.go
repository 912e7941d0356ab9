// Package pipeline drives one query through the Worker, Auditor, and
// Resolver under the active policy snapshot, recording every transition in
// the audit chain.
package pipeline

import (
	"time"

	"github.com/davidahmann/proctor/internal/keys"
)

// RequestContext is the resolved context a request arrives with. The
// pipeline never looks at raw input channels.
type RequestContext struct {
	Mode          string `json:"mode"`
	Module        string `json:"module"`
	ReadingLevel  string `json:"reading_level,omitempty"`
	SafetyProfile string `json:"safety_profile,omitempty"`
}

// Request is one pipeline run's input. Immutable once created.
type Request struct {
	RunID          string
	Context        RequestContext
	Query          string
	Knowledge      string
	OverrideSecret string
}

type Citation struct {
	Source    string `json:"source"`
	Quote     string `json:"quote,omitempty"`
	Relevance string `json:"relevance,omitempty"`
}

// WorkerOutput is the Worker's structured response. Confidence is 0 to 1.
type WorkerOutput struct {
	Response   string     `json:"response"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Caveats    []string   `json:"caveats,omitempty"`
}

// AuditorVerdict is the Auditor's structured review of a Worker output.
type AuditorVerdict struct {
	Verdict           Verdict   `json:"verdict"`
	Flags             []string  `json:"flags,omitempty"`
	Reasoning         string    `json:"reasoning,omitempty"`
	SuggestedRevision string    `json:"suggested_revision,omitempty"`
	RiskLevel         RiskLevel `json:"risk_level"`
}

// Action is the Resolver's final call on a run.
type Action string

const (
	ActionAccept            Action = "accept"
	ActionAcceptWithCaveats Action = "accept_with_caveats"
	ActionRetryWithRevision Action = "retry_with_revision"
	ActionReject            Action = "reject"
	ActionEscalate          Action = "escalate"
)

// OverrideUse records that a key override was exercised in a decision.
type OverrideUse struct {
	KeyID   string `json:"key_id"`
	Scope   string `json:"scope"`
	GrantID string `json:"grant_id"`
}

// Decision is the Resolver's output: the final action, the text ultimately
// returned, and the rationale.
type Decision struct {
	Action    Action       `json:"action"`
	Response  string       `json:"response"`
	Caveats   []string     `json:"caveats,omitempty"`
	Rationale string       `json:"rationale,omitempty"`
	Override  *OverrideUse `json:"override,omitempty"`
}

// ResolverInput is everything the decision table consumes. The same input
// always yields the same Decision.
type ResolverInput struct {
	Verdict       AuditorVerdict
	Worker        WorkerOutput
	AuditorStrict bool
	MinConfidence float64
	AllowOverride bool
	Grant         keys.Grant
	GrantScope    string
	Now           time.Time
	RetriesLeft   int
}

// ConfidenceBasisPoints converts a 0-1 confidence to integer basis points
// for audit payloads, which carry no floats.
func ConfidenceBasisPoints(confidence float64) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 10000
	}
	return int(confidence*10000 + 0.5)
}
