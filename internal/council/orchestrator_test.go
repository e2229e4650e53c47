package council

import (
	"context"
	"testing"

	"github.com/sgx-labs/tripartite/internal/agent"
	"github.com/sgx-labs/tripartite/internal/consensus"
	"github.com/sgx-labs/tripartite/internal/hardware"
	"github.com/sgx-labs/tripartite/internal/redact"
	"github.com/sgx-labs/tripartite/internal/types"
	"github.com/sgx-labs/tripartite/internal/vault"
)

type scriptedLLM struct {
	responses []string
	i         int
}

func (s *scriptedLLM) next() (string, int, error) {
	if s.i >= len(s.responses) {
		s.i = len(s.responses) - 1
	}
	r := s.responses[s.i]
	s.i++
	return r, 10, nil
}
func (s *scriptedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return s.next()
}
func (s *scriptedLLM) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return s.next()
}
func (s *scriptedLLM) PickBestModel() (string, error) { return "scripted", nil }
func (s *scriptedLLM) Provider() string               { return "scripted" }

const manifestJSONWithCreds = `{
  "telos": "Show how to connect to the database",
  "query_type": "generate",
  "constraints": ["use credentials"],
  "priority": "speed",
  "persona": {"expertise": "intermediate", "style": "technical"},
  "context_hints": {"relevant_paths": [], "domain": ""},
  "verification_scope": {"check_facts": false, "check_hardware": false, "check_safety": true}
}`

func TestProcessRedactsBeforeAgentsAndReinflatesAnswer(t *testing.T) {
	v := vault.NewMemory()
	proxy := redact.New(v)

	intent := agent.NewIntent(&scriptedLLM{responses: []string{manifestJSONWithCreds}})
	// Logic's output deliberately echoes the redaction token rather than
	// the literal secret; the orchestrator's reinflate pass restores it
	// only in the user-facing message.
	logic := agent.NewLogic(&scriptedLLM{responses: []string{"connect using os.Getenv(\"DB_PASSWORD\")"}}, nil, false, 5)
	truth := agent.NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)

	engine := consensus.New(intent, logic, truth)
	orch := New(engine, proxy)

	cfg := consensus.Config{MaxRounds: 3, Threshold: 0.70}
	outcome, err := orch.Process(context.Background(), "connect with password=hunter2example", "sess-1", cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.Kind != types.OutcomeReached {
		t.Fatalf("expected reached, got %v: %s", outcome.Kind, outcome.Feedback)
	}

	stats, err := proxy.Stats("sess-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalTokens == 0 {
		t.Fatal("expected the proxy to have minted at least one token for the password")
	}
}

func TestProcessWithNilProxySkipsRedaction(t *testing.T) {
	intent := agent.NewIntent(&scriptedLLM{responses: []string{manifestJSONWithCreds}})
	logic := agent.NewLogic(&scriptedLLM{responses: []string{"plain answer"}}, nil, false, 5)
	truth := agent.NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)

	engine := consensus.New(intent, logic, truth)
	orch := New(engine, nil)

	cfg := consensus.Config{MaxRounds: 3, Threshold: 0.70}
	outcome, err := orch.Process(context.Background(), "hello", "sess-2", cfg)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.Answer != "plain answer" {
		t.Fatalf("expected unmodified answer without a proxy, got %q", outcome.Answer)
	}
}

func TestProcessRejectsInvalidSessionID(t *testing.T) {
	intent := agent.NewIntent(&scriptedLLM{responses: []string{manifestJSONWithCreds}})
	logic := agent.NewLogic(&scriptedLLM{responses: []string{"x"}}, nil, false, 5)
	truth := agent.NewTruth(hardware.NewStatic(hardware.DefaultLimits), nil)
	engine := consensus.New(intent, logic, truth)
	orch := New(engine, nil)

	_, err := orch.Process(context.Background(), "hello", "", consensus.DefaultConfig())
	if err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestUserMessageAndExitCodeForVetoed(t *testing.T) {
	outcome := types.ConsensusOutcome{
		Kind:                types.OutcomeVetoed,
		Feedback:            "1. [CRITICAL] candidate answer matches veto pattern: recursive root deletion",
		CriticalConstraints: []types.Constraint{{Severity: types.SeverityCritical, Description: "recursive root deletion"}},
	}
	msg := UserMessage(outcome)
	if msg == "" {
		t.Fatal("expected non-empty vetoed message")
	}
	if ExitCode(outcome) != 3 {
		t.Fatalf("expected exit code 3 for vetoed, got %d", ExitCode(outcome))
	}
}

func TestExitCodeForReachedAndFailed(t *testing.T) {
	if ExitCode(types.ConsensusOutcome{Kind: types.OutcomeReached}) != 0 {
		t.Fatal("expected exit code 0 for reached")
	}
	if ExitCode(types.ConsensusOutcome{Kind: types.OutcomeFailed}) != 2 {
		t.Fatal("expected exit code 2 for failed")
	}
}
