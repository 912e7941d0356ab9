package pipeline

import (
	"context"
	"encoding/json"

	"github.com/davidahmann/proctor/internal/backend"
)

type auditorWire struct {
	Verdict           string   `json:"verdict"`
	Flags             []string `json:"flags"`
	Reasoning         string   `json:"reasoning"`
	SuggestedRevision string   `json:"suggested_revision"`
	RiskLevel         string   `json:"risk_level"`
}

// runAuditor invokes the Auditor capability over the Worker's output.
// Wholly unparseable auditor text falls back to a conservative REVISE, not
// an implicit approval.
func runAuditor(ctx context.Context, capability backend.Capability, req Request, worker WorkerOutput) (AuditorVerdict, error) {
	workerJSON, err := json.Marshal(worker)
	if err != nil {
		return AuditorVerdict{}, err
	}

	text, err := capability.Invoke(ctx, auditorSystemPrompt(req.Context), auditorPrompt(req, string(workerJSON)), req.Query)
	if err != nil {
		return AuditorVerdict{}, err
	}
	return parseAuditorVerdict(text), nil
}

func parseAuditorVerdict(text string) AuditorVerdict {
	raw, ok := extractJSONObject(text)
	if ok {
		var wire auditorWire
		if err := json.Unmarshal([]byte(raw), &wire); err == nil && wire.Verdict != "" {
			return AuditorVerdict{
				Verdict:           ParseVerdict(wire.Verdict),
				Flags:             filterFlags(wire.Flags),
				Reasoning:         wire.Reasoning,
				SuggestedRevision: wire.SuggestedRevision,
				RiskLevel:         ParseRiskLevel(wire.RiskLevel),
			}
		}
	}
	return AuditorVerdict{
		Verdict:   VerdictRevise,
		Flags:     []string{"confidence"},
		Reasoning: "auditor output not parseable; flagging for review",
		RiskLevel: RiskMedium,
	}
}
