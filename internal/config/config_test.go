package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeMaxRounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consensus.MaxRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for max_rounds=0")
	}
	cfg.Consensus.MaxRounds = 11
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for max_rounds=11")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consensus.Threshold = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative threshold")
	}
	cfg.Consensus.Threshold = 1.1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for threshold > 1")
	}
}

func TestEnvOverridesApplyOverDefaults(t *testing.T) {
	t.Setenv("TPC_MAX_ROUNDS", "5")
	t.Setenv("TPC_THRESHOLD", "0.9")
	t.Setenv("TPC_REDACT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Consensus.MaxRounds != 5 {
		t.Fatalf("expected max_rounds=5, got %d", cfg.Consensus.MaxRounds)
	}
	if cfg.Consensus.Threshold != 0.9 {
		t.Fatalf("expected threshold=0.9, got %f", cfg.Consensus.Threshold)
	}
	if cfg.Consensus.Redact {
		t.Fatalf("expected redact=false from env override")
	}
}

func TestGenerateDefaultWritesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tripartite.toml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("generate: %v", err)
	}
	t.Setenv("TPC_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if cfg.Consensus.MaxRounds != 3 {
		t.Fatalf("expected default max_rounds=3 from generated file, got %d", cfg.Consensus.MaxRounds)
	}
}

func TestVaultAndKnowledgeDBPathsNestUnderDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/tpc-data"
	if cfg.VaultDBPath() != filepath.Join("/tmp/tpc-data", "vault.db") {
		t.Fatalf("unexpected vault db path: %s", cfg.VaultDBPath())
	}
	if cfg.KnowledgeDBPath() != filepath.Join("/tmp/tpc-data", "knowledge.db") {
		t.Fatalf("unexpected knowledge db path: %s", cfg.KnowledgeDBPath())
	}
}

