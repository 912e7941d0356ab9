package pipeline

import "fmt"

// Resolve is the deterministic decision table. It is the sole authority
// over the final action: the same input always yields the same Decision,
// independent of which backend produced the text. First matching rule wins.
//
//  1. REJECT without a valid override grant rejects.
//  2. REJECT with a valid grant and override-on-conflict enabled accepts
//     with caveats and records the override.
//  3. ESCALATE always escalates; no key suppresses it.
//  4. REVISE with retry budget left requests a retry.
//  5. REVISE with the budget exhausted rejects; a repeatedly failing
//     response is never force-accepted.
//  6. APPROVE accepts, with a low-confidence caveat under strict auditing.
func Resolve(in ResolverInput) Decision {
	switch in.Verdict.Verdict {
	case VerdictReject:
		overrideValid := in.AllowOverride && in.Grant.ValidFor(in.GrantScope, in.Now)
		if !overrideValid {
			return Decision{
				Action:    ActionReject,
				Response:  RefusalReject,
				Rationale: rationale("rejected", in.Verdict.Reasoning),
			}
		}
		return Decision{
			Action:   ActionAcceptWithCaveats,
			Response: in.Worker.Response,
			Caveats: append(copyCaveats(in.Worker.Caveats),
				"A safety override was exercised for this response."),
			Rationale: rationale("override accepted", in.Verdict.Reasoning),
			Override: &OverrideUse{
				KeyID:   in.Grant.KeyID,
				Scope:   in.Grant.Scope,
				GrantID: in.Grant.GrantID,
			},
		}

	case VerdictEscalate:
		return Decision{
			Action:    ActionEscalate,
			Response:  RefusalEscalate,
			Rationale: rationale("escalated", in.Verdict.Reasoning),
		}

	case VerdictRevise:
		if in.RetriesLeft > 0 {
			return Decision{
				Action:    ActionRetryWithRevision,
				Response:  in.Verdict.SuggestedRevision,
				Rationale: rationale("retry requested", in.Verdict.Reasoning),
			}
		}
		return Decision{
			Action:    ActionReject,
			Response:  RefusalReject,
			Rationale: rationale("retry budget exhausted", in.Verdict.Reasoning),
		}

	case VerdictApprove:
		if in.AuditorStrict && in.Worker.Confidence < in.MinConfidence {
			return Decision{
				Action:    ActionAcceptWithCaveats,
				Response:  in.Worker.Response,
				Caveats:   append(copyCaveats(in.Worker.Caveats), CaveatLowConf),
				Rationale: "approved below confidence threshold",
			}
		}
		return Decision{
			Action:    ActionAccept,
			Response:  in.Worker.Response,
			Caveats:   copyCaveats(in.Worker.Caveats),
			Rationale: "approved by auditor",
		}

	default:
		// ParseVerdict closes the set; an out-of-range value still fails safe.
		return Decision{
			Action:    ActionEscalate,
			Response:  RefusalEscalate,
			Rationale: "unrecognized verdict",
		}
	}
}

func rationale(outcome, reasoning string) string {
	if reasoning == "" {
		return outcome
	}
	return fmt.Sprintf("%s: %s", outcome, reasoning)
}

func copyCaveats(caveats []string) []string {
	if len(caveats) == 0 {
		return nil
	}
	out := make([]string, len(caveats))
	copy(out, caveats)
	return out
}
