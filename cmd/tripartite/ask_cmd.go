package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/tripartite/internal/agent"
	"github.com/sgx-labs/tripartite/internal/config"
	"github.com/sgx-labs/tripartite/internal/consensus"
	"github.com/sgx-labs/tripartite/internal/council"
	"github.com/sgx-labs/tripartite/internal/embedding"
	"github.com/sgx-labs/tripartite/internal/hardware"
	"github.com/sgx-labs/tripartite/internal/knowledge"
	"github.com/sgx-labs/tripartite/internal/llm"
	"github.com/sgx-labs/tripartite/internal/redact"
	"github.com/sgx-labs/tripartite/internal/retrieval"
	"github.com/sgx-labs/tripartite/internal/vault"
)

func askCmd() *cobra.Command {
	var sessionID string
	var maxRounds int
	var threshold float64
	var noRedact bool
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Run a prompt through the tripartite consensus core",
		Long: `Ask submits a prompt to the Intent, Logic, and Truth agents and blocks
until they reach weighted consensus, veto the request, or exhaust the
configured round limit.

Provider routing follows TPC_CHAT_PROVIDER / TPC_EMBED_PROVIDER (or auto
mode). Exit codes: 0 on a reached consensus, 2 on a revision/round-limit
failure, 3 on a veto.

Examples:
  tpc ask "write a function that sums a slice of ints"
  tpc ask "explain the retry policy in this package" --session review-1
  tpc ask "delete the build cache" --no-redact`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(args[0], sessionID, maxRounds, threshold, noRedact)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", council.DefaultSessionID, "Session id grouping this conversation's redaction tokens")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Override the consensus round limit (1..=10, default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Override the consensus confidence threshold (0..=1, default from config)")
	cmd.Flags().BoolVar(&noRedact, "no-redact", false, "Disable the privacy proxy and pass the raw prompt straight to the agents")
	return cmd
}

func runAsk(prompt, sessionID string, maxRounds int, threshold float64, noRedact bool) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty prompt: tpc ask \"what should this function do?\"")
	}
	if len(prompt) > config.MaxPromptChars {
		return fmt.Errorf("prompt exceeds %d characters", config.MaxPromptChars)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	if maxRounds > 0 {
		cfg.Consensus.MaxRounds = maxRounds
	}
	if threshold > 0 {
		cfg.Consensus.Threshold = threshold
	}
	if noRedact {
		cfg.Consensus.Redact = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	orchestrator, closeFn, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Printf("Routing through Intent, Logic, and Truth (max %d rounds, threshold %.2f)...\n",
		cfg.Consensus.MaxRounds, cfg.Consensus.Threshold)

	outcome, err := orchestrator.Process(context.Background(), prompt, sessionID, consensus.Config{
		MaxRounds: cfg.Consensus.MaxRounds,
		Threshold: cfg.Consensus.Threshold,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Println()
	fmt.Println(council.UserMessage(outcome))
	fmt.Println()

	if code := council.ExitCode(outcome); code != 0 {
		return &cliExitError{code: code, msg: "consensus did not reach an accepted answer"}
	}
	return nil
}

// buildOrchestrator wires the Token Vault, Privacy Proxy, Knowledge Store,
// Retrieval Ranker, the three agents, and the Consensus Engine into a
// single Council Orchestrator, the same dependency order the teacher's own
// ask command resolves its store and model clients in. The returned func
// closes every owned resource (vault DB, knowledge DB).
func buildOrchestrator(cfg *config.Config) (*council.Orchestrator, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	chatClient, err := llm.NewClient(cfg)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("chat provider: %w", err)
	}

	var ranker *retrieval.Ranker
	enableRAG := false
	if cfg.Embedding.Provider != "none" {
		embedProvider, err := embedding.NewProvider(embedding.ProviderConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err == nil {
			store, err := knowledge.Open(cfg.KnowledgeDBPath(), embedProvider.Dimensions())
			if err == nil {
				closers = append(closers, store.Close)
				ranker = retrieval.New(store, embedding.Adapter{Provider: embedProvider})
				enableRAG = true
			}
		}
		// A missing/unconfigured embedding provider degrades to
		// Logic running without retrieval-augmented context rather
		// than failing the whole command; the spec treats RAG as an
		// enhancement, not a hard dependency of the Logic agent.
	}

	intent := agent.NewIntent(chatClient)
	logic := agent.NewLogic(chatClient, ranker, enableRAG, cfg.Retrieval.TopK)
	truth := agent.NewTruth(hardware.NewStatic(hardware.DefaultLimits), redact.Default())
	engine := consensus.New(intent, logic, truth)

	var proxy *redact.Proxy
	if cfg.Consensus.Redact {
		v, err := vault.Open(cfg.VaultDBPath())
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("token vault: %w", err)
		}
		closers = append(closers, v.Close)
		proxy = redact.New(v)
	}

	return council.New(engine, proxy), closeAll, nil
}
