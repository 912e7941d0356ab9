package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/proctor/internal/audit"
	"github.com/davidahmann/proctor/internal/backend"
	"github.com/davidahmann/proctor/internal/keys"
	"github.com/davidahmann/proctor/internal/pack"
	"github.com/davidahmann/proctor/internal/policy"
)

// Config wires an Orchestrator. Policy, Chain, and Worker are required;
// Auditor defaults to the Worker capability, Keys and Packs and
// Escalations are optional.
type Config struct {
	Policy      *policy.Store
	Keys        *keys.Registry
	Chain       *audit.Chain
	Packs       *pack.Registry
	Worker      backend.Capability
	Auditor     backend.Capability
	Escalations *Outbox
	Clock       func() time.Time
}

// Orchestrator runs the state machine for one query at a time per call.
// Concurrent runs share only the policy store and the audit chain writer.
type Orchestrator struct {
	policy      *policy.Store
	keys        *keys.Registry
	chain       *audit.Chain
	packs       *pack.Registry
	worker      backend.Capability
	auditor     backend.Capability
	escalations *Outbox
	clock       func() time.Time
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("missing policy store")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("missing audit chain")
	}
	if cfg.Worker == nil {
		return nil, fmt.Errorf("missing worker capability")
	}
	auditor := cfg.Auditor
	if auditor == nil {
		auditor = cfg.Worker
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		policy:      cfg.Policy,
		keys:        cfg.Keys,
		chain:       cfg.Chain,
		packs:       cfg.Packs,
		worker:      cfg.Worker,
		auditor:     auditor,
		escalations: cfg.Escalations,
		clock:       clock,
	}, nil
}

// Result is what the caller gets back: the final action and text plus the
// audit entries the run produced.
type Result struct {
	RunID    string   `json:"run_id"`
	Action   Action   `json:"action"`
	Response string   `json:"response"`
	Caveats  []string `json:"caveats,omitempty"`
	State    State    `json:"state"`
	Entries  []uint64 `json:"entries"`
}

// run tracks one pipeline execution's mutable state.
type run struct {
	id      string
	req     Request
	snap    *policy.Snapshot
	state   State
	entries []uint64
}

func (o *Orchestrator) append(r *run, entryType audit.EntryType, payload map[string]any) error {
	seq, err := o.chain.Append(entryType, r.id, payload)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	r.entries = append(r.entries, seq)
	return nil
}

func (o *Orchestrator) abort(r *run, reason string, cause error) (Result, error) {
	payload := map[string]any{
		"reason": reason,
		"state":  string(r.state),
	}
	if err := o.append(r, audit.EntryAborted, payload); err != nil {
		return Result{}, errors.Join(cause, err)
	}
	r.state = StateAborted
	return Result{
		RunID:   r.id,
		Action:  ActionReject,
		State:   StateAborted,
		Entries: r.entries,
	}, cause
}

// Run drives one query through the full state machine. Each state
// transition writes exactly one audit entry before the run leaves the
// state; a caller timeout aborts at the next state boundary, never mid
// append.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	r := &run{
		id:    req.RunID,
		req:   req,
		snap:  o.policy.Snapshot(),
		state: StateReceived,
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if r.req.Context.Mode == "" {
		r.req.Context.Mode = r.snap.CurrentMode()
	}

	if err := o.append(r, audit.EntryPipelineReceived, map[string]any{
		"module": r.req.Context.Module,
		"mode":   r.req.Context.Mode,
		"query":  r.req.Query,
	}); err != nil {
		return Result{}, err
	}

	// RECEIVED -> POLICY_CHECKED. Disabled capabilities never reach
	// generation.
	if denied, reason := o.policyDenied(r); denied {
		if err := o.append(r, audit.EntryPolicyDenied, map[string]any{
			"module": r.req.Context.Module,
			"mode":   r.req.Context.Mode,
			"reason": reason,
		}); err != nil {
			return Result{}, err
		}
		return o.abort(r, "policy_denied", fmt.Errorf("%w: %s", ErrPolicyDenied, reason))
	}
	r.state = StatePolicyChecked
	if err := o.append(r, audit.EntryPolicyChecked, map[string]any{
		"module":      r.req.Context.Module,
		"mode":        r.req.Context.Mode,
		"policy_hash": r.snap.Hash,
	}); err != nil {
		return Result{}, err
	}

	grant, grantScope, err := o.verifyOverride(r)
	if err != nil {
		return Result{}, err
	}

	requiresAuditor := o.requiresAuditor(r)

	retriesLeft := 1
	revision := ""
	var decision Decision

	for {
		if ctx.Err() != nil {
			return o.abort(r, "timeout", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
		}

		// POLICY_CHECKED (or RESOLVED, on retry) -> WORKED.
		worker, err := runWorker(ctx, o.worker, r.req, revision)
		if err != nil {
			return o.abort(r, "worker_unavailable", fmt.Errorf("%w: %v", ErrWorkerUnavailable, err))
		}
		r.state = StateWorked
		if err := o.append(r, audit.EntryWorkerComplete, map[string]any{
			"confidence_bp":  ConfidenceBasisPoints(worker.Confidence),
			"citation_count": len(worker.Citations),
			"response":       worker.Response,
		}); err != nil {
			return Result{}, err
		}

		// WORKED -> AUDITED.
		var verdict AuditorVerdict
		if !requiresAuditor {
			verdict = AuditorVerdict{Verdict: VerdictApprove, Reasoning: "auditor not required by policy"}
			r.state = StateAudited
			if err := o.append(r, audit.EntryAuditorSkipped, map[string]any{
				"reason": "policy",
			}); err != nil {
				return Result{}, err
			}
		} else {
			if ctx.Err() != nil {
				return o.abort(r, "timeout", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
			}
			verdict, err = runAuditor(ctx, o.auditor, r.req, worker)
			if err != nil {
				return o.abort(r, "auditor_unavailable", fmt.Errorf("%w: %v", ErrAuditorUnavailable, err))
			}
			r.state = StateAudited
			if err := o.append(r, audit.EntryAuditorComplete, map[string]any{
				"verdict":    verdict.Verdict.String(),
				"flags":      verdict.Flags,
				"risk_level": verdict.RiskLevel.String(),
				"reasoning":  verdict.Reasoning,
			}); err != nil {
				return Result{}, err
			}
		}

		// AUDITED -> RESOLVED.
		decision = Resolve(ResolverInput{
			Verdict:       verdict,
			Worker:        worker,
			AuditorStrict: r.snap.AuditorStrict(),
			MinConfidence: r.snap.MinConfidence(),
			AllowOverride: r.snap.AllowOverrideOnConflict(),
			Grant:         grant,
			GrantScope:    grantScope,
			Now:           o.clock(),
			RetriesLeft:   retriesLeft,
		})
		r.state = StateResolved
		if err := o.append(r, audit.EntryResolverDecision, map[string]any{
			"action":    string(decision.Action),
			"rationale": decision.Rationale,
		}); err != nil {
			return Result{}, err
		}
		if decision.Override != nil {
			if err := o.append(r, audit.EntryOverrideUsed, map[string]any{
				"key_id":   decision.Override.KeyID,
				"scope":    decision.Override.Scope,
				"grant_id": decision.Override.GrantID,
			}); err != nil {
				return Result{}, err
			}
		}

		if decision.Action != ActionRetryWithRevision {
			break
		}
		// RESOLVED -> WORKED, at most once.
		retriesLeft--
		revision = decision.Response
	}

	if decision.Action == ActionEscalate && o.escalations != nil {
		if _, err := o.escalations.Enqueue(r.id, r.req.Context, decision.Rationale, r.req.Query); err != nil {
			return Result{}, err
		}
	}

	// RESOLVED -> DELIVERED.
	r.state = StateDelivered
	if err := o.append(r, audit.EntryDelivered, map[string]any{
		"action": string(decision.Action),
	}); err != nil {
		return Result{}, err
	}

	return Result{
		RunID:    r.id,
		Action:   decision.Action,
		Response: decision.Response,
		Caveats:  decision.Caveats,
		State:    StateDelivered,
		Entries:  r.entries,
	}, nil
}

func (o *Orchestrator) policyDenied(r *run) (bool, string) {
	if eval := r.snap.CanUseModule(r.req.Context.Module); !eval.Allowed {
		return true, eval.Reason
	}
	if r.req.Context.Mode != r.snap.CurrentMode() {
		return true, fmt.Sprintf("mode %q is not the active mode", r.req.Context.Mode)
	}
	if o.packs != nil {
		if m, ok := o.packs.Get(r.req.Context.Module); ok && !m.SupportsMode(r.req.Context.Mode) {
			return true, fmt.Sprintf("pack %q does not serve mode %q", m.ID, r.req.Context.Mode)
		}
	}
	return false, ""
}

func (o *Orchestrator) verifyOverride(r *run) (keys.Grant, string, error) {
	if r.req.OverrideSecret == "" || o.keys == nil {
		return keys.Grant{}, "", nil
	}
	scope := r.snap.OverrideScopeFor(policy.ActionSafetyOverride)
	grant, err := o.keys.Verify(r.req.OverrideSecret, scope, r.id)
	if err != nil {
		// An invalid key does not abort the run; the resolver simply has
		// no grant to honor. The registry already audited the failure.
		if errors.Is(err, keys.ErrKeyInvalid) {
			return keys.Grant{}, scope, nil
		}
		return keys.Grant{}, "", err
	}
	return grant, scope, nil
}

func (o *Orchestrator) requiresAuditor(r *run) bool {
	required := r.snap.RequiresAuditor()
	if o.packs != nil {
		if m, ok := o.packs.Get(r.req.Context.Module); ok {
			required = required || m.RequiresAuditor
			if r.req.Context.SafetyProfile == "" {
				r.req.Context.SafetyProfile = m.SafetyProfile
			}
		}
	}
	return required
}
