package types

type QueryRequest struct {
	RunID        string `json:"run_id,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Module       string `json:"module"`
	ReadingLevel string `json:"reading_level,omitempty"`
	Query        string `json:"query"`
	Knowledge    string `json:"knowledge,omitempty"`
	OverrideKey  string `json:"override_key,omitempty"`
}

type QueryResponse struct {
	RunID    string   `json:"run_id"`
	Action   string   `json:"action"`
	Response string   `json:"response"`
	Caveats  []string `json:"caveats,omitempty"`
	State    string   `json:"state"`
	Entries  []uint64 `json:"entries,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type OverrideRequest struct {
	Key   string `json:"key"`
	Scope string `json:"scope"`
	RunID string `json:"run_id,omitempty"`
}

type OverrideResponse struct {
	GrantID   string `json:"grant_id"`
	KeyID     string `json:"key_id"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at"`
}

type ModeSwitchRequest struct {
	Mode string `json:"mode"`
	Key  string `json:"key,omitempty"`
}

type ModeSwitchResponse struct {
	Mode string `json:"mode"`
}
