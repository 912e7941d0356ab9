package policy

// Document is the validated capability-toggle tree. It is immutable once
// loaded; reloads build a fresh Document and swap the store pointer.
type Document struct {
	PolicyID      string                  `yaml:"policy_id" json:"policy_id"`
	PolicyVersion string                  `yaml:"policy_version" json:"policy_version"`
	DeviceID      string                  `yaml:"device_id" json:"device_id"`
	Organization  string                  `yaml:"organization" json:"organization,omitempty"`
	Mode          ModeConfig              `yaml:"mode" json:"mode"`
	Modules       map[string]ModuleToggle `yaml:"modules" json:"modules"`
	Safety        SafetyConfig            `yaml:"safety" json:"safety"`
	Output        OutputConfig            `yaml:"output" json:"output"`
	Audit         AuditConfig             `yaml:"audit" json:"audit"`
}

type ModeConfig struct {
	Current           string   `yaml:"current" json:"current"`
	Allowed           []string `yaml:"allowed" json:"allowed"`
	SwitchRequiresKey bool     `yaml:"switch_requires_key" json:"switch_requires_key"`
	SwitchKeyScope    string   `yaml:"switch_key_scope" json:"switch_key_scope"`
}

type ModuleToggle struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Loaded  bool `yaml:"loaded" json:"loaded"`
}

type SafetyConfig struct {
	RequireAuditor          bool    `yaml:"require_auditor" json:"require_auditor"`
	AuditorStrict           bool    `yaml:"auditor_strict" json:"auditor_strict"`
	MinConfidence           float64 `yaml:"min_confidence" json:"min_confidence"`
	AllowOverrideOnConflict bool    `yaml:"allow_override_on_conflict" json:"allow_override_on_conflict"`
	OverrideRequiresKey     bool    `yaml:"override_requires_key" json:"override_requires_key"`
	OverrideKeyScope        string  `yaml:"override_key_scope" json:"override_key_scope"`
	RedactionLevel          string  `yaml:"redaction_level" json:"redaction_level"`
}

type OutputConfig struct {
	DefaultReadingLevel  string `yaml:"default_reading_level" json:"default_reading_level"`
	AllowProfileOverride bool   `yaml:"allow_profile_override" json:"allow_profile_override"`
}

type AuditConfig struct {
	LogQueries    bool `yaml:"log_queries" json:"log_queries"`
	LogResponses  bool `yaml:"log_responses" json:"log_responses"`
	LogOverrides  bool `yaml:"log_overrides" json:"log_overrides"`
	RetentionDays int  `yaml:"retention_days,omitempty" json:"retention_days,omitempty"`
}

// Evaluation is the result of a point query: whether the action is allowed
// and, when it is, whether it must be unlocked by a scoped key.
type Evaluation struct {
	Allowed     bool
	RequiresKey bool
	KeyScope    string
	Reason      string
}

// Override action names accepted by OverrideScopeFor.
const (
	ActionSafetyOverride = "safety_override"
	ActionModeSwitch     = "mode_switch"
)

const (
	defaultOverrideKeyScope = "safety_override"
	defaultSwitchKeyScope   = "mode_control"
	defaultMinConfidence    = 0.6
	defaultReadingLevel     = "general"
)

func normalize(doc *Document) {
	if doc.Safety.OverrideKeyScope == "" {
		doc.Safety.OverrideKeyScope = defaultOverrideKeyScope
	}
	if doc.Safety.MinConfidence == 0 {
		doc.Safety.MinConfidence = defaultMinConfidence
	}
	if doc.Mode.SwitchKeyScope == "" {
		doc.Mode.SwitchKeyScope = defaultSwitchKeyScope
	}
	if doc.Output.DefaultReadingLevel == "" {
		doc.Output.DefaultReadingLevel = defaultReadingLevel
	}
	if doc.Modules == nil {
		doc.Modules = map[string]ModuleToggle{}
	}
}
