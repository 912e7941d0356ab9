package pipeline

import "strings"

// Verdict is the Auditor's categorical judgment, closed at the boundary.
// Free-form model output never propagates as an open string.
type Verdict int

const (
	VerdictApprove Verdict = iota
	VerdictRevise
	VerdictReject
	VerdictEscalate
)

func (v Verdict) String() string {
	switch v {
	case VerdictApprove:
		return "approve"
	case VerdictRevise:
		return "revise"
	case VerdictReject:
		return "reject"
	case VerdictEscalate:
		return "escalate"
	default:
		return "escalate"
	}
}

// ParseVerdict maps a model-produced verdict string to the closed set. Any
// unrecognized value becomes ESCALATE, the fail-safe default.
func ParseVerdict(s string) Verdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return VerdictApprove
	case "revise":
		return VerdictRevise
	case "reject":
		return VerdictReject
	case "escalate":
		return VerdictEscalate
	default:
		return VerdictEscalate
	}
}

// RiskLevel orders the Auditor's risk assessment: low < medium < high <
// critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "low"
	}
}

// ParseRiskLevel defaults to low for unrecognized values.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	case "critical":
		return RiskCritical
	default:
		return RiskLow
	}
}

// Known auditor flags. Unknown flags from the model are dropped.
var knownFlags = map[string]struct{}{
	"safety":        {},
	"accuracy":      {},
	"scope":         {},
	"confidence":    {},
	"citation":      {},
	"reading_level": {},
	"harmful":       {},
}

func filterFlags(flags []string) []string {
	var out []string
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		if _, ok := knownFlags[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
