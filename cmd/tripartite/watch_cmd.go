package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/tripartite/internal/config"
	"github.com/sgx-labs/tripartite/internal/embedding"
	"github.com/sgx-labs/tripartite/internal/knowledge"
	"github.com/sgx-labs/tripartite/internal/watcher"
)

func watchCmd() *cobra.Command {
	var chunkLen int
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and keep the knowledge store current",
		Long: `Watch monitors dir for document changes and ingests them into the
knowledge store through the same write path document ingestion uses,
so Logic's retrieval-augmented context stays current without a separate
reindex step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], chunkLen)
		},
	}
	cmd.Flags().IntVar(&chunkLen, "chunk-len", 0, "Target chunk size in characters (default 2000)")
	return cmd
}

func runWatch(dir string, chunkLen int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}

	embedProvider, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	store, err := knowledge.Open(cfg.KnowledgeDBPath(), embedProvider.Dimensions())
	if err != nil {
		return fmt.Errorf("knowledge store: %w", err)
	}
	defer store.Close()

	ingester := knowledge.NewIngester(store, embedding.DocumentAdapter{Provider: embedProvider}, chunkLen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watcher.Watch(ctx, ingester, dir)
}
