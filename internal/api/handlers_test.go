package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/davidahmann/proctor/pkg/types"
)

func doRequest(t *testing.T, env *testEnv, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	res := httptest.NewRecorder()
	NewRouter(env.handler).ServeHTTP(res, req)
	return res
}

func TestQueryNoAuth(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"first_aid","query":"q"}`, false)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestQueryInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/query", "{invalid", true)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestQueryHappyPath(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"first_aid","query":"how do I treat a burn"}`, true)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}

	var resp types.QueryResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action != "accept" || resp.Response != "apply direct pressure" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.RunID == "" || len(resp.Entries) == 0 {
		t.Fatalf("resp missing audit trail refs: %+v", resp)
	}
}

func TestQueryDisabledModuleForbidden(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"medical","query":"dosage"}`, true)
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d", res.Code)
	}

	var resp types.QueryResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action != "reject" || resp.Error == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if env.worker.calls != 0 {
		t.Fatalf("worker called %d times for a denied request", env.worker.calls)
	}
}

func TestQueryMissingFields(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"first_aid"}`, true)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestOverrideValidKey(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/override", `{"key":"nurse-secret"}`, true)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}

	var resp types.OverrideResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.KeyID != "field-nurse-01" || resp.Scope != "safety_override" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.GrantID == "" || resp.ExpiresAt == "" {
		t.Fatalf("resp missing grant fields: %+v", resp)
	}
}

func TestOverrideInvalidKeyUniform(t *testing.T) {
	env := newTestEnv(t)

	// Wrong secret and wrong scope must be indistinguishable to the caller.
	res1 := doRequest(t, env, http.MethodPost, "/v1/override", `{"key":"wrong"}`, true)
	res2 := doRequest(t, env, http.MethodPost, "/v1/override", `{"key":"nurse-secret","scope":"mode_control"}`, true)
	if res1.Code != http.StatusForbidden || res2.Code != http.StatusForbidden {
		t.Fatalf("statuses = %d, %d", res1.Code, res2.Code)
	}
	if res1.Body.String() != res2.Body.String() {
		t.Fatalf("failure bodies differ: %q vs %q", res1.Body.String(), res2.Body.String())
	}
}

func TestOverrideNeverEchoesSecret(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/override", `{"key":"nurse-secret"}`, true)
	if strings.Contains(res.Body.String(), "nurse-secret") {
		t.Fatalf("response leaked the presented secret: %s", res.Body.String())
	}
}

func TestModeSwitchRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	res := doRequest(t, env, http.MethodPost, "/v1/mode", `{"mode":"emergency"}`, true)
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d, keyless switch must be refused", res.Code)
	}

	res = doRequest(t, env, http.MethodPost, "/v1/mode", `{"mode":"emergency","key":"admin-secret"}`, true)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}

	var resp types.ModeSwitchResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "emergency" {
		t.Fatalf("mode = %q", resp.Mode)
	}
	if env.policy.Snapshot().CurrentMode() != "emergency" {
		t.Fatalf("store did not switch")
	}
}

func TestModeSwitchDisallowedTarget(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodPost, "/v1/mode", `{"mode":"hybrid","key":"admin-secret"}`, true)
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestPolicyReload(t *testing.T) {
	env := newTestEnv(t)

	updated := strings.Replace(testPolicyYAML, `policy_version: "2026-08-01"`, `policy_version: "2026-08-15"`, 1)
	if err := os.WriteFile(env.policyPath, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}

	res := doRequest(t, env, http.MethodPost, "/v1/policy/reload", "", true)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.Code, res.Body.String())
	}

	var resp types.ReloadResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PolicyVersion != "2026-08-15" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPolicyReloadInvalidDocumentKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	before := env.policy.Snapshot()

	if err := os.WriteFile(env.policyPath, []byte("not: [valid"), 0o600); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}

	res := doRequest(t, env, http.MethodPost, "/v1/policy/reload", "", true)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
	if env.policy.Snapshot() != before {
		t.Fatalf("failed reload must keep the previous snapshot")
	}
}

func TestAuditVerifyAndStatus(t *testing.T) {
	env := newTestEnv(t)

	if res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"first_aid","query":"q"}`, true); res.Code != http.StatusOK {
		t.Fatalf("seed query status = %d", res.Code)
	}

	res := doRequest(t, env, http.MethodGet, "/v1/audit/verify", "", true)
	if res.Code != http.StatusOK {
		t.Fatalf("verify status = %d", res.Code)
	}
	var verify types.VerifyResponse
	if err := json.Unmarshal(res.Body.Bytes(), &verify); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !verify.Valid {
		t.Fatalf("chain should verify: %+v", verify)
	}

	res = doRequest(t, env, http.MethodGet, "/v1/status", "", true)
	if res.Code != http.StatusOK {
		t.Fatalf("status status = %d", res.Code)
	}
	var status types.StatusResponse
	if err := json.Unmarshal(res.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.PolicyID != "proctor-default" || status.Mode != "education" {
		t.Fatalf("status = %+v", status)
	}
	if status.AuditEntries == 0 || status.AuditHeadHash == "" {
		t.Fatalf("status missing chain stats: %+v", status)
	}
	if !status.Modules["first_aid"] || status.Modules["medical"] {
		t.Fatalf("modules = %v", status.Modules)
	}
}

func TestAuditExportFiltersByType(t *testing.T) {
	env := newTestEnv(t)

	if res := doRequest(t, env, http.MethodPost, "/v1/query", `{"module":"first_aid","query":"q"}`, true); res.Code != http.StatusOK {
		t.Fatalf("seed query status = %d", res.Code)
	}

	res := doRequest(t, env, http.MethodGet, "/v1/audit/export?type=worker_complete", "", true)
	if res.Code != http.StatusOK {
		t.Fatalf("export status = %d", res.Code)
	}

	var bundle struct {
		Entries []struct {
			Type string `json:"type"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bundle.Entries) != 1 || bundle.Entries[0].Type != "worker_complete" {
		t.Fatalf("entries = %+v", bundle.Entries)
	}
}

func TestAuditExportBadRange(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodGet, "/v1/audit/export?from=abc", "", true)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	res := doRequest(t, env, http.MethodGet, "/v1/query", "", true)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", res.Code)
	}
}
