package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgx-labs/tripartite/internal/config"
	mcpserver "github.com/sgx-labs/tripartite/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the consensus core as an MCP server over stdio",
		Long: `Exposes the tripartite consensus core as a single "ask" MCP tool over
stdio, so an editor agent can route a prompt through Intent/Logic/Truth
consensus instead of generating unchecked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dataDirOverride != "" {
				cfg.DataDir = dataDirOverride
			}

			orchestrator, closeFn, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			mcpserver.Version = Version
			if err := mcpserver.Serve(orchestrator); err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		},
	}
}
