package types

type StatusResponse struct {
	PolicyID      string            `json:"policy_id"`
	PolicyVersion string            `json:"policy_version"`
	PolicyHash    string            `json:"policy_hash"`
	Mode          string            `json:"mode"`
	Modules       map[string]bool   `json:"modules"`
	Packs         []string          `json:"packs,omitempty"`
	AuditEntries  uint64            `json:"audit_entries"`
	AuditHeadHash string            `json:"audit_head_hash"`
	EntriesByType map[string]uint64 `json:"entries_by_type,omitempty"`
}

type VerifyResponse struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type ReloadResponse struct {
	PolicyID      string `json:"policy_id"`
	PolicyVersion string `json:"policy_version"`
	PolicyHash    string `json:"policy_hash"`
}
