package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sgx-labs/tripartite/internal/agent"
	"github.com/sgx-labs/tripartite/internal/consensus"
	"github.com/sgx-labs/tripartite/internal/council"
	"github.com/sgx-labs/tripartite/internal/hardware"
	"github.com/sgx-labs/tripartite/internal/llm"
)

type fakeLLM struct {
	responses []string
	i         int
}

func (f *fakeLLM) next() (string, int, error) {
	if f.i >= len(f.responses) {
		f.i = len(f.responses) - 1
	}
	r := f.responses[f.i]
	f.i++
	return r, 5, nil
}
func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return f.next()
}
func (f *fakeLLM) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return f.next()
}
func (f *fakeLLM) PickBestModel() (string, error) { return "fake", nil }
func (f *fakeLLM) Provider() string               { return "fake" }

var _ llm.Client = (*fakeLLM)(nil)

const fakeManifestJSON = `{
  "telos": "Generate one-line integer sum function",
  "query_type": "generate",
  "constraints": ["one line"],
  "priority": "speed",
  "persona": {"expertise": "novice", "style": "casual"},
  "context_hints": {"relevant_paths": [], "domain": ""},
  "verification_scope": {"check_facts": false, "check_hardware": false, "check_safety": true}
}`

func buildTestOrchestrator() *council.Orchestrator {
	intent := agent.NewIntent(&fakeLLM{responses: []string{fakeManifestJSON}})
	logic := agent.NewLogic(&fakeLLM{responses: []string{"func sum(xs []int) int { t := 0; for _, x := range xs { t += x }; return t }"}}, nil, false, 5)
	truth := agent.NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	engine := consensus.New(intent, logic, truth)
	return council.New(engine, nil)
}

func TestHandlerForReturnsAnswerOnReached(t *testing.T) {
	orch := buildTestOrchestrator()
	handler := handlerFor(orch)

	result, out, err := handler(context.Background(), &mcp.CallToolRequest{}, askInput{
		Prompt:    "Write a function to sum a list of integers in one line.",
		Threshold: 0.70,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected non-empty tool result content")
	}
	output, ok := out.(askOutput)
	if !ok {
		t.Fatalf("expected askOutput, got %T", out)
	}
	if output.Outcome != "reached" {
		t.Fatalf("expected reached outcome, got %q: %s", output.Outcome, output.Message)
	}
	if output.Answer == "" {
		t.Fatal("expected non-empty answer on reached outcome")
	}
}

func TestHandlerForRejectsEmptyPrompt(t *testing.T) {
	orch := buildTestOrchestrator()
	handler := handlerFor(orch)

	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, askInput{Prompt: ""})
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestHandlerForRejectsOversizedPrompt(t *testing.T) {
	orch := buildTestOrchestrator()
	handler := handlerFor(orch)

	oversized := make([]byte, maxPromptLen+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, askInput{Prompt: string(oversized)})
	if err == nil {
		t.Fatal("expected error for oversized prompt")
	}
}

func TestCheckAskRateLimitBlocksAfterBurst(t *testing.T) {
	askMu.Lock()
	askTimes = nil
	askMu.Unlock()

	for i := 0; i < askRateLimit; i++ {
		if !checkAskRateLimit() {
			t.Fatalf("expected call %d within burst to succeed", i)
		}
	}
	if checkAskRateLimit() {
		t.Fatal("expected the call past the burst limit to be rejected")
	}
}
