// Package main is the entrypoint for the tripartite consensus core CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// dataDirOverride holds the --data-dir persistent flag; empty means use
// config.DefaultConfig's own resolution (env var, then $HOME/.tripartite).
var dataDirOverride string

func main() {
	root := &cobra.Command{
		Use:   "tpc",
		Short: "Run prompts through the tripartite consensus core",
		Long: `tpc routes a prompt through three agents — Intent, Logic, and Truth — that
must reach weighted consensus, or veto, before an answer is returned.

Quick Start:
  tpc ask "..."   Run a prompt through the consensus core

Provider routing follows TPC_CHAT_PROVIDER / TPC_EMBED_PROVIDER (or auto
mode). See tpc ask --help for per-run overrides.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(askCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(watchCmd())

	root.PersistentFlags().StringVar(&dataDirOverride, "data-dir", "", "Data directory for the token vault and knowledge store (overrides TPC_DATA_DIR)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeForErr(err))
	}
}

// exitCodeForErr maps a command error to a process exit code. runAsk
// returns *cliExitError for consensus-outcome exits (0/2/3 per the
// council's own ExitCode mapping); anything else is an operator error.
func exitCodeForErr(err error) int {
	if ce, ok := err.(*cliExitError); ok {
		return ce.code
	}
	return 1
}

type cliExitError struct {
	code int
	msg  string
}

func (e *cliExitError) Error() string { return e.msg }

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tpc version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}
