// Package config loads the service configuration from YAML with
// environment overrides for secrets and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	Listen       string             `yaml:"listen"`
	Store        StoreConfig        `yaml:"store"`
	Features     Features           `yaml:"features"`
	Vector       VectorConfig       `yaml:"vector"`
	Recall       RecallConfig       `yaml:"recall"`
	Approval     ApprovalConfig     `yaml:"approval"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	// StrictInvariants refuses to start without a usable approval
	// signing secret instead of running with canonical writes disabled.
	StrictInvariants bool `yaml:"strict_invariants"`
}

// StoreConfig locates the database and the audit mirror.
type StoreConfig struct {
	DBPath          string `yaml:"db_path"`
	AuditMirrorPath string `yaml:"audit_mirror_path"`
}

// Features toggles optional subsystems.
type Features struct {
	// ShadowObservation records drift findings on every drift probe.
	ShadowObservation bool `yaml:"shadow_observation"`
	// Ingest indexes semantic-scope writes into the vector backend.
	Ingest bool `yaml:"ingest"`
	// SemanticMemory enables the recall gateway entirely.
	SemanticMemory bool `yaml:"semantic_memory"`
}

// VectorConfig locates the external vector backend. An empty URL selects
// the embedded index.
type VectorConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Dim        int    `yaml:"dim"`
}

// RecallConfig tunes the recall gateway.
type RecallConfig struct {
	BudgetMS         int   `yaml:"budget_ms"`
	FailureThreshold int   `yaml:"failure_threshold"`
	WindowSeconds    int   `yaml:"window_seconds"`
	CooldownSeconds  int   `yaml:"cooldown_seconds"`
	CacheEntries     int64 `yaml:"cache_entries"`
}

// ApprovalConfig holds the shared signing secret.
type ApprovalConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// ControlPlaneConfig locates the approving authority.
type ControlPlaneConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Default returns the baseline configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".redmem")
	return &Config{
		Listen: "127.0.0.1:8787",
		Store: StoreConfig{
			DBPath:          filepath.Join(dataDir, "redmem.db"),
			AuditMirrorPath: filepath.Join(dataDir, "audit.jsonl"),
		},
		Features: Features{
			ShadowObservation: true,
			Ingest:            true,
			SemanticMemory:    true,
		},
		Vector: VectorConfig{
			Collection: "red_memory_semantic",
			Dim:        384,
		},
		Recall: RecallConfig{
			BudgetMS:         50,
			FailureThreshold: 5,
			WindowSeconds:    60,
			CooldownSeconds:  300,
			CacheEntries:     256,
		},
		Approval: ApprovalConfig{
			TTLSeconds: 300,
		},
		ControlPlane: ControlPlaneConfig{
			TimeoutSeconds: 10,
		},
	}
}

// Load reads path over the defaults. An empty path returns defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDMEM_DB"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("REDMEM_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("REDMEM_APPROVAL_SECRET"); v != "" {
		cfg.Approval.SigningSecret = v
	}
	if v := os.Getenv("REDMEM_VECTOR_URL"); v != "" {
		cfg.Vector.URL = v
	}
	if v := os.Getenv("REDMEM_CONTROL_PLANE_URL"); v != "" {
		cfg.ControlPlane.BaseURL = v
	}
}

// Validate rejects configurations the service cannot run on.
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required")
	}
	if c.Recall.BudgetMS < 0 || c.Recall.FailureThreshold < 0 ||
		c.Recall.WindowSeconds < 0 || c.Recall.CooldownSeconds < 0 {
		return fmt.Errorf("recall settings must not be negative")
	}
	if c.Vector.Dim < 0 {
		return fmt.Errorf("vector.dim must not be negative")
	}
	return nil
}
