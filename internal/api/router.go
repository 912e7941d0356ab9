package api

import "net/http"

// NewRouter binds the gateway routes. Method enforcement lives here so the
// handlers stay focused on payloads.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/query", requireMethod(http.MethodPost, h.Query))
	mux.HandleFunc("/v1/override", requireMethod(http.MethodPost, h.Override))
	mux.HandleFunc("/v1/mode", requireMethod(http.MethodPost, h.Mode))
	mux.HandleFunc("/v1/policy/reload", requireMethod(http.MethodPost, h.PolicyReload))
	mux.HandleFunc("/v1/audit/verify", requireMethod(http.MethodGet, h.AuditVerify))
	mux.HandleFunc("/v1/audit/export", requireMethod(http.MethodGet, h.AuditExport))
	mux.HandleFunc("/v1/status", requireMethod(http.MethodGet, h.Status))
	return mux
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		next(w, r)
	}
}
