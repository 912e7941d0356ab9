package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	APIToken   string           `yaml:"api_token"`
	DB         DBConfig         `yaml:"db"`
	PolicyPath string           `yaml:"policy_path"`
	KeysPath   string           `yaml:"keys_path"`
	PacksDir   string           `yaml:"packs_dir"`
	Backend    BackendConfig    `yaml:"backend"`
	Override   OverrideConfig   `yaml:"override"`
	Audit      AuditConfig      `yaml:"audit"`
	Escalation EscalationConfig `yaml:"escalation"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type BackendConfig struct {
	WorkerEndpoint  string `yaml:"worker_endpoint"`
	AuditorEndpoint string `yaml:"auditor_endpoint"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type OverrideConfig struct {
	GrantWindowSeconds int `yaml:"grant_window_seconds"`
}

// AuditConfig selects the optional export signing key. Exports are unsigned
// when no key path is set.
type AuditConfig struct {
	SigningKeyPath string `yaml:"signing_key_path"`
	SigningKeyID   string `yaml:"signing_key_id"`
}

// EscalationConfig points escalation delivery at a webhook. Escalations are
// queued but never delivered when no URL is set.
type EscalationConfig struct {
	WebhookURL          string `yaml:"webhook_url"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.PolicyPath == "" {
		return fmt.Errorf("policy_path is required")
	}

	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}

	if c.Backend.WorkerEndpoint == "" {
		return fmt.Errorf("backend.worker_endpoint is required")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must not be negative")
	}
	if c.Override.GrantWindowSeconds < 0 {
		return fmt.Errorf("override.grant_window_seconds must not be negative")
	}
	if c.Escalation.PollIntervalSeconds < 0 {
		return fmt.Errorf("escalation.poll_interval_seconds must not be negative")
	}
	return nil
}

func (c Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c Config) GrantWindow() time.Duration {
	if c.Override.GrantWindowSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Override.GrantWindowSeconds) * time.Second
}

func (c Config) EscalationPollInterval() time.Duration {
	if c.Escalation.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Escalation.PollIntervalSeconds) * time.Second
}
