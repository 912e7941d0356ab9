package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidahmann/proctor/internal/audit"
	"github.com/davidahmann/proctor/internal/auth"
	"github.com/davidahmann/proctor/internal/keys"
	"github.com/davidahmann/proctor/internal/pipeline"
	"github.com/davidahmann/proctor/internal/policy"
)

const testPolicyYAML = `
policy_id: proctor-default
policy_version: "2026-08-01"
device_id: unit-01
mode:
  current: education
  allowed: [education, emergency]
  switch_requires_key: true
modules:
  first_aid: {enabled: true, loaded: true}
  medical: {enabled: false, loaded: false}
safety:
  require_auditor: true
  auditor_strict: true
  min_confidence: 0.7
  allow_override_on_conflict: true
  override_requires_key: true
  redaction_level: none
audit:
  log_queries: true
  log_responses: true
  retention_days: 365
`

const testToken = "test-token"

func testClock() func() time.Time {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

type stubCapability struct {
	responses []string
	calls     int
}

func (c *stubCapability) Invoke(ctx context.Context, system, userContext, query string) (string, error) {
	c.calls++
	idx := c.calls - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

type testEnv struct {
	handler    *Handler
	service    *Service
	store      *audit.InMemoryStore
	chain      *audit.Chain
	policy     *policy.Store
	policyPath string
	worker     *stubCapability
	auditor    *stubCapability
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(policyPath, []byte(testPolicyYAML), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	policyStore, err := policy.NewStore(policyPath, testClock())
	if err != nil {
		t.Fatalf("policy store: %v", err)
	}

	store := audit.NewInMemoryStore()
	chain, err := audit.NewChain(store, audit.RedactionNone, testClock())
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	records := []keys.Record{
		{
			ID:         "field-nurse-01",
			SecretHash: keys.HashSecret("nurse-secret"),
			Scopes:     []string{"safety_override"},
		},
		{
			ID:         "site-admin-01",
			SecretHash: keys.HashSecret("admin-secret"),
			Scopes:     []string{"*"},
		},
	}
	registry := keys.NewRegistry(records, 5*time.Minute, chain, testClock())

	worker := &stubCapability{responses: []string{`{"response":"apply direct pressure","confidence":0.9}`}}
	auditor := &stubCapability{responses: []string{`{"verdict":"approve","reasoning":"ok","risk_level":"low"}`}}

	orch, err := pipeline.New(pipeline.Config{
		Policy:  policyStore,
		Keys:    registry,
		Chain:   chain,
		Worker:  worker,
		Auditor: auditor,
		Clock:   testClock(),
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	service := &Service{
		Policy:   policyStore,
		Keys:     registry,
		Chain:    chain,
		Pipeline: orch,
		Clock:    testClock(),
	}
	handler := &Handler{
		Auth:    auth.NewTokenAuthenticator(testToken),
		Service: service,
	}
	return &testEnv{
		handler:    handler,
		service:    service,
		store:      store,
		chain:      chain,
		policy:     policyStore,
		policyPath: policyPath,
		worker:     worker,
		auditor:    auditor,
	}
}
