// Package mcp exposes the Council Orchestrator as a single MCP tool over
// stdio, so an editor agent can route a prompt through the tripartite
// consensus protocol instead of generating unchecked.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/tripartite/internal/consensus"
	"github.com/sgx-labs/tripartite/internal/council"
	"github.com/sgx-labs/tripartite/internal/types"
)

// maxPromptLen mirrors the core's own per-request bound (§5 resource
// limits); the MCP boundary enforces it before the prompt ever reaches the
// orchestrator.
const maxPromptLen = 100_000

// askRateLimit caps how many consensus runs a single MCP session may
// trigger per minute — each run may invoke a model several times across
// rounds, so this bounds runaway agent-driven request storms.
const askRateLimit = 10
const askRateWindow = 60 * time.Second

var (
	askTimes []time.Time
	askMu    sync.Mutex
)

func checkAskRateLimit() bool {
	askMu.Lock()
	defer askMu.Unlock()
	now := time.Now()
	cutoff := now.Add(-askRateWindow)
	valid := askTimes[:0]
	for _, t := range askTimes {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	askTimes = valid
	if len(askTimes) >= askRateLimit {
		return false
	}
	askTimes = append(askTimes, now)
	return true
}

// Version is set by the caller (main) before calling Serve.
var Version = "dev"

type askInput struct {
	Prompt    string  `json:"prompt" jsonschema:"the user's request"`
	SessionID string  `json:"session_id,omitempty" jsonschema:"groups redaction tokens for this conversation; defaults to a per-process session"`
	MaxRounds int     `json:"max_rounds,omitempty" jsonschema:"bounded 1..=10, default 3"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"consensus confidence threshold 0..=1, default 0.85"`
}

type askOutput struct {
	Outcome             string  `json:"outcome"`
	Answer              string  `json:"answer,omitempty"`
	Round               int     `json:"round"`
	AggregateConfidence float64 `json:"aggregate_confidence,omitempty"`
	Message             string  `json:"message"`
}

// Serve starts the MCP server on stdio, exposing orchestrator as the
// single "ask" tool.
func Serve(orchestrator *council.Orchestrator) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tripartite",
		Version: Version,
	}, nil)

	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Run a prompt through the tripartite consensus core (Intent, Logic, Truth agents with bounded-round voting) and return a verified answer, a revision request, or a veto explanation.\n\nArgs:\n  prompt: the request to process\n  session_id: optional, groups this conversation's redaction tokens\n  max_rounds: optional, 1..=10 (default 3)\n  threshold: optional, 0..=1 (default 0.85)\n\nReturns the outcome kind, the answer when reached, and a user-facing message for any other outcome.",
		Annotations: readOnly,
	}, handlerFor(orchestrator))

	return server.Run(context.Background(), &mcp.StdioTransport{})
}

func handlerFor(orchestrator *council.Orchestrator) func(context.Context, *mcp.CallToolRequest, askInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input askInput) (*mcp.CallToolResult, any, error) {
		if len(input.Prompt) == 0 {
			return nil, nil, fmt.Errorf("mcp: prompt must not be empty")
		}
		if len(input.Prompt) > maxPromptLen {
			return nil, nil, fmt.Errorf("mcp: prompt exceeds %d characters", maxPromptLen)
		}
		if !checkAskRateLimit() {
			return nil, nil, fmt.Errorf("mcp: ask rate limit exceeded, try again shortly")
		}

		sessionID := input.SessionID
		if sessionID == "" {
			sessionID = council.DefaultSessionID
		}

		cfg := consensus.DefaultConfig()
		if input.MaxRounds > 0 {
			cfg.MaxRounds = input.MaxRounds
		}
		if input.Threshold > 0 {
			cfg.Threshold = input.Threshold
		}

		outcome, err := orchestrator.Process(ctx, input.Prompt, sessionID, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("mcp: %w", err)
		}

		out := askOutput{
			Outcome:             string(outcome.Kind),
			Round:               outcome.Round,
			AggregateConfidence: outcome.AggregateConfidence,
			Message:             council.UserMessage(outcome),
		}
		if outcome.Kind == types.OutcomeReached {
			out.Answer = outcome.Answer
		}

		data, marshalErr := json.MarshalIndent(out, "", "  ")
		if marshalErr != nil {
			return nil, nil, fmt.Errorf("mcp: marshal result: %w", marshalErr)
		}
		return textResult(string(data)), out, nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
