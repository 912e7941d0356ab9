package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidahmann/proctor/internal/audit"
	"github.com/davidahmann/proctor/internal/keys"
	"github.com/davidahmann/proctor/internal/pack"
	"github.com/davidahmann/proctor/internal/pipeline"
	"github.com/davidahmann/proctor/internal/policy"
	"github.com/davidahmann/proctor/pkg/types"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
)

// Service glues the gateway routes to the pipeline, policy store, key
// registry, and audit chain.
type Service struct {
	Policy   *policy.Store
	Keys     *keys.Registry
	Chain    *audit.Chain
	Packs    *pack.Registry
	Pipeline *pipeline.Orchestrator
	Signer   audit.Signer
	Clock    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) Query(ctx context.Context, req types.QueryRequest) (types.QueryResponse, error) {
	if req.Module == "" || req.Query == "" {
		return types.QueryResponse{}, fmt.Errorf("%w: module and query are required", ErrBadRequest)
	}

	result, err := s.Pipeline.Run(ctx, pipeline.Request{
		RunID: req.RunID,
		Context: pipeline.RequestContext{
			Mode:         req.Mode,
			Module:       req.Module,
			ReadingLevel: req.ReadingLevel,
		},
		Query:          req.Query,
		Knowledge:      req.Knowledge,
		OverrideSecret: req.OverrideKey,
	})

	resp := types.QueryResponse{
		RunID:    result.RunID,
		Action:   string(result.Action),
		Response: result.Response,
		Caveats:  result.Caveats,
		State:    string(result.State),
		Entries:  result.Entries,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, err
}

// Override verifies a key out of band and reports the grant it would mint.
// The grant itself is not persisted; each pipeline run re-verifies the
// presented secret.
func (s *Service) Override(req types.OverrideRequest) (types.OverrideResponse, error) {
	if req.Key == "" {
		return types.OverrideResponse{}, fmt.Errorf("%w: key is required", ErrBadRequest)
	}
	if s.Keys == nil {
		return types.OverrideResponse{}, fmt.Errorf("%w: no key registry configured", ErrForbidden)
	}

	scope := req.Scope
	if scope == "" {
		scope = s.Policy.Snapshot().OverrideScopeFor(policy.ActionSafetyOverride)
	}

	grant, err := s.Keys.Verify(req.Key, scope, req.RunID)
	if err != nil {
		if errors.Is(err, keys.ErrKeyInvalid) {
			return types.OverrideResponse{}, fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		return types.OverrideResponse{}, err
	}

	return types.OverrideResponse{
		GrantID:   grant.GrantID,
		KeyID:     grant.KeyID,
		Scope:     grant.Scope,
		ExpiresAt: grant.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// SwitchMode changes the active mode, requiring a mode_control key when the
// policy says switching is key-gated.
func (s *Service) SwitchMode(req types.ModeSwitchRequest) (types.ModeSwitchResponse, error) {
	if req.Mode == "" {
		return types.ModeSwitchResponse{}, fmt.Errorf("%w: mode is required", ErrBadRequest)
	}

	snap := s.Policy.Snapshot()
	from := snap.CurrentMode()
	eval := snap.CanSwitchMode(req.Mode)
	if !eval.Allowed {
		return types.ModeSwitchResponse{}, fmt.Errorf("%w: %s", ErrForbidden, eval.Reason)
	}
	if eval.RequiresKey {
		if s.Keys == nil {
			return types.ModeSwitchResponse{}, fmt.Errorf("%w: mode switching requires a key but no registry is configured", ErrForbidden)
		}
		if _, err := s.Keys.Verify(req.Key, eval.KeyScope, ""); err != nil {
			if errors.Is(err, keys.ErrKeyInvalid) {
				return types.ModeSwitchResponse{}, fmt.Errorf("%w: %v", ErrForbidden, err)
			}
			return types.ModeSwitchResponse{}, err
		}
	}

	next, err := s.Policy.SwitchMode(req.Mode)
	if err != nil {
		return types.ModeSwitchResponse{}, fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	if _, err := s.Chain.Append(audit.EntryModeChanged, "", map[string]any{
		"from":        from,
		"to":          next.CurrentMode(),
		"policy_hash": next.Hash,
	}); err != nil {
		return types.ModeSwitchResponse{}, err
	}

	return types.ModeSwitchResponse{Mode: next.CurrentMode()}, nil
}

// ReloadPolicy re-reads the policy file and swaps the snapshot. The chain's
// write-time redaction level follows the new document.
func (s *Service) ReloadPolicy() (types.ReloadResponse, error) {
	snap, err := s.Policy.Reload()
	if err != nil {
		return types.ReloadResponse{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if s.Packs != nil {
		if err := s.Policy.EnsureModuleToggles(s.Packs.IDs()); err != nil {
			return types.ReloadResponse{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	s.Chain.SetRedactionLevel(audit.ParseRedactionLevel(snap.RedactionLevel()))
	if _, err := s.Chain.Append(audit.EntryPolicyReloaded, "", map[string]any{
		"policy_id":      snap.Document.PolicyID,
		"policy_version": snap.Document.PolicyVersion,
		"policy_hash":    snap.Hash,
	}); err != nil {
		return types.ReloadResponse{}, err
	}

	return types.ReloadResponse{
		PolicyID:      snap.Document.PolicyID,
		PolicyVersion: snap.Document.PolicyVersion,
		PolicyHash:    snap.Hash,
	}, nil
}

func (s *Service) Status() (types.StatusResponse, error) {
	snap := s.Policy.Snapshot()
	stats, err := s.Chain.Stats()
	if err != nil {
		return types.StatusResponse{}, err
	}

	modules := make(map[string]bool, len(snap.Document.Modules))
	for id := range snap.Document.Modules {
		modules[id] = snap.IsEnabled(id)
	}

	resp := types.StatusResponse{
		PolicyID:      snap.Document.PolicyID,
		PolicyVersion: snap.Document.PolicyVersion,
		PolicyHash:    snap.Hash,
		Mode:          snap.CurrentMode(),
		Modules:       modules,
		AuditEntries:  stats.Entries,
		AuditHeadHash: stats.HeadHash,
		EntriesByType: stats.ByType,
	}
	if s.Packs != nil {
		resp.Packs = s.Packs.IDs()
	}
	return resp, nil
}

func (s *Service) VerifyChain(from, to uint64) types.VerifyResponse {
	resp := types.VerifyResponse{From: from, To: to, Valid: true}
	if err := s.Chain.Verify(from, to); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	return resp
}

func (s *Service) ExportChain(from, to uint64, entryType string) (audit.Bundle, error) {
	return s.Chain.ExportBundle(from, to, audit.EntryType(entryType), s.Signer)
}
