package policy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["policy_id", "policy_version", "device_id", "mode", "modules", "safety", "audit"],
  "additionalProperties": false,
  "properties": {
    "policy_id": {"type": "string", "minLength": 1},
    "policy_version": {"type": "string", "minLength": 1},
    "device_id": {"type": "string", "minLength": 1},
    "organization": {"type": "string"},
    "mode": {
      "type": "object",
      "required": ["current", "allowed"],
      "additionalProperties": false,
      "properties": {
        "current": {"enum": ["education", "emergency", "hybrid"]},
        "allowed": {
          "type": "array",
          "minItems": 1,
          "items": {"enum": ["education", "emergency", "hybrid"]}
        },
        "switch_requires_key": {"type": "boolean"},
        "switch_key_scope": {"type": "string", "minLength": 1}
      }
    },
    "modules": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["enabled"],
        "additionalProperties": false,
        "properties": {
          "enabled": {"type": "boolean"},
          "loaded": {"type": "boolean"}
        }
      }
    },
    "safety": {
      "type": "object",
      "required": ["require_auditor", "auditor_strict", "allow_override_on_conflict", "redaction_level"],
      "additionalProperties": false,
      "properties": {
        "require_auditor": {"type": "boolean"},
        "auditor_strict": {"type": "boolean"},
        "min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "allow_override_on_conflict": {"type": "boolean"},
        "override_requires_key": {"type": "boolean"},
        "override_key_scope": {"type": "string", "minLength": 1},
        "redaction_level": {"enum": ["none", "minimal", "standard", "strict"]}
      }
    },
    "output": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default_reading_level": {"enum": ["child", "teen", "general", "technical", "expert"]},
        "allow_profile_override": {"type": "boolean"}
      }
    },
    "audit": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "log_queries": {"type": "boolean"},
        "log_responses": {"type": "boolean"},
        "log_overrides": {"type": "boolean"},
        "retention_days": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var documentSchema = jsonschema.MustCompileString("policy.schema.json", schemaJSON)

// validateSchema checks raw YAML bytes against the document schema. The YAML
// is round-tripped through encoding/json so the validator sees the value
// shapes it expects.
func validateSchema(raw []byte) error {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	encoded, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if err := documentSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// validateConsistency applies the cross-field checks the schema cannot
// express: the current mode must be allowed and key scopes must be usable.
func validateConsistency(doc Document) error {
	allowed := false
	for _, mode := range doc.Mode.Allowed {
		if mode == doc.Mode.Current {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: mode.current %q not in mode.allowed", ErrSchema, doc.Mode.Current)
	}

	if doc.Mode.SwitchRequiresKey && doc.Mode.SwitchKeyScope == "" {
		return fmt.Errorf("%w: mode.switch_key_scope must be set when switching requires a key", ErrSchema)
	}
	if doc.Safety.OverrideRequiresKey && doc.Safety.OverrideKeyScope == "" {
		return fmt.Errorf("%w: safety.override_key_scope must be set when overrides require a key", ErrSchema)
	}
	return nil
}
