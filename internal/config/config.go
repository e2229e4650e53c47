// Package config loads layered configuration for the consensus core:
// CLI flags override environment variables, which override a TOML file,
// which overrides built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Resource-limit constants from the external-interfaces contract.
const (
	MaxPromptChars     = 100_000
	MaxPromptBytes     = 500_000
	MaxAgentOutputToks = 128_000
	DefaultRetrievalK  = 5
)

// ConsensusConfig controls the Consensus Engine's round policy.
type ConsensusConfig struct {
	MaxRounds int     `toml:"max_rounds"`
	Threshold float64 `toml:"threshold"`
	Redact    bool    `toml:"redact"`
}

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Dimensions int    `toml:"dimensions"`
}

// ChatConfig selects and parameterizes the LLM client used by the Logic
// and Intent agents.
type ChatConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
}

// RetrievalConfig tunes the Retrieval Ranker.
type RetrievalConfig struct {
	TopK int `toml:"top_k"`
}

// Config is the fully resolved configuration for a council run.
type Config struct {
	Consensus ConsensusConfig `toml:"consensus"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chat      ChatConfig      `toml:"chat"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	VaultPath string          `toml:"vault_path"`
	DataDir   string          `toml:"data_dir"`
}

// DefaultConfig returns the built-in baseline, before any TOML file or
// environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Consensus: ConsensusConfig{
			MaxRounds: 3,
			Threshold: 0.75,
			Redact:    true,
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		Chat: ChatConfig{
			Provider: "auto",
		},
		Retrieval: RetrievalConfig{
			TopK: DefaultRetrievalK,
		},
		DataDir: defaultDataDir(),
	}
}

// Load merges defaults, a TOML file (if found), and environment variables,
// in that order — each layer overriding the one before it. CLI flags are
// applied by the caller afterward, since cobra owns flag parsing.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFile(); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TPC_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Consensus.MaxRounds = n
		}
	}
	if v := os.Getenv("TPC_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Consensus.Threshold = f
		}
	}
	if v := os.Getenv("TPC_REDACT"); v != "" {
		cfg.Consensus.Redact = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("TPC_EMBED_PROVIDER")); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("TPC_EMBED_MODEL")); v != "" {
		cfg.Embedding.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TPC_EMBED_BASE_URL")); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TPC_EMBED_API_KEY")); v != "" {
		cfg.Embedding.APIKey = v
	}
	if cfg.Embedding.APIKey == "" && (cfg.Embedding.Provider == "openai" || cfg.Embedding.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("TPC_CHAT_PROVIDER")); v != "" {
		cfg.Chat.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("TPC_CHAT_MODEL")); v != "" {
		cfg.Chat.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("TPC_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TPC_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = n
		}
	}
}

// Validate enforces the resource-limit bounds named in the external
// interfaces: max_rounds 1..=10, threshold 0..=1.
func (c *Config) Validate() error {
	if c.Consensus.MaxRounds < 1 || c.Consensus.MaxRounds > 10 {
		return fmt.Errorf("config: max_rounds must be 1..=10, got %d", c.Consensus.MaxRounds)
	}
	if c.Consensus.Threshold < 0 || c.Consensus.Threshold > 1 {
		return fmt.Errorf("config: threshold must be 0..=1, got %f", c.Consensus.Threshold)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("config: retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	return nil
}

// findConfigFile looks for tripartite.toml in $TPC_CONFIG, then CWD.
func findConfigFile() string {
	if v := os.Getenv("TPC_CONFIG"); v != "" {
		if _, err := os.Stat(v); err == nil {
			return v
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, "tripartite.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tripartite")
	}
	return ".tripartite"
}

// VaultDBPath returns the default token vault database path under DataDir.
func (c *Config) VaultDBPath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

// KnowledgeDBPath returns the default knowledge store database path under
// DataDir.
func (c *Config) KnowledgeDBPath() string {
	return filepath.Join(c.DataDir, "knowledge.db")
}

// GenerateDefault writes a commented default tripartite.toml to path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	var b strings.Builder
	b.WriteString("# Tripartite consensus core configuration.\n\n")
	b.WriteString("[consensus]\n")
	b.WriteString("max_rounds = 3\n")
	b.WriteString("threshold = 0.75\n")
	b.WriteString("redact = true\n\n")
	b.WriteString("[embedding]\n")
	b.WriteString("provider = \"ollama\"\n")
	b.WriteString("model = \"nomic-embed-text\"\n\n")
	b.WriteString("[chat]\n")
	b.WriteString("provider = \"auto\"\n\n")
	b.WriteString("[retrieval]\n")
	b.WriteString("top_k = 5\n")
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
