package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sgx-labs/tripartite/internal/llm"
	"github.com/sgx-labs/tripartite/internal/types"
)

const intentSystemPrompt = `You are the Intent agent in a tripartite consensus system.
Given a user's prompt, emit a strict JSON object matching this schema, with
no surrounding prose, no markdown fences, and no commentary:

{
  "telos": "one-sentence restatement of the goal, <= 512 chars",
  "query_type": "generate" | "analyze" | "transform" | "verify" | "explain",
  "constraints": ["explicit and inferred constraints, ordered"],
  "priority": "speed" | "quality" | "cost",
  "persona": {"expertise": "novice" | "intermediate" | "expert", "style": "formal" | "casual" | "technical"},
  "context_hints": {"relevant_paths": ["..."], "domain": "..."},
  "verification_scope": {"check_facts": bool, "check_hardware": bool, "check_safety": bool}
}`

const jsonOnlyReminder = "\n\nYour previous response was not valid JSON. Respond with the JSON object only."

// Intent extracts a structured Manifest from a raw prompt.
type Intent struct {
	readyFlag
	client llm.Client
}

// NewIntent builds an Intent agent over a chat client, marking it ready
// immediately (the client's own provider resolution already validated
// backend availability at construction).
func NewIntent(client llm.Client) *Intent {
	i := &Intent{client: client}
	i.setReady(true)
	return i
}

func (i *Intent) Name() string { return "intent" }

type intentResponse struct {
	Telos             string   `json:"telos"`
	QueryType         string   `json:"query_type"`
	Constraints       []string `json:"constraints"`
	Priority          string   `json:"priority"`
	Persona           struct {
		Expertise string `json:"expertise"`
		Style     string `json:"style"`
	} `json:"persona"`
	ContextHints struct {
		RelevantPaths []string `json:"relevant_paths"`
		Domain        string   `json:"domain"`
	} `json:"context_hints"`
	VerificationScope struct {
		CheckFacts    bool `json:"check_facts"`
		CheckHardware bool `json:"check_hardware"`
		CheckSafety   bool `json:"check_safety"`
	} `json:"verification_scope"`
}

// Process extracts a Manifest from the prompt carried in manifest.Telos on
// entry (the orchestrator seeds a bare manifest with the raw/redacted
// prompt as Telos before Intent runs) and returns it serialized as JSON in
// AgentOutput.Content.
func (i *Intent) Process(ctx context.Context, manifest types.Manifest) (types.AgentOutput, error) {
	prompt := manifest.Telos
	start := time.Now()

	raw, tokens, err := i.client.GenerateJSON(ctx, intentSystemPrompt, prompt)
	if err != nil {
		return types.AgentOutput{}, classifyModelError("intent", err)
	}

	parsed, parseErr := parseIntentResponse(raw)
	if parseErr != nil {
		raw, tokens, err = i.client.GenerateJSON(ctx, intentSystemPrompt, prompt+jsonOnlyReminder)
		if err != nil {
			return types.AgentOutput{}, classifyModelError("intent", err)
		}
		parsed, parseErr = parseIntentResponse(raw)
		if parseErr != nil {
			return types.AgentOutput{}, &Error{Kind: KindParseFailure, Agent: "intent", Msg: "manifest did not parse as JSON after retry", Err: parseErr}
		}
	}

	out := buildManifest(parsed)
	confidence := intentConfidence(prompt, out)

	content, err := json.Marshal(out)
	if err != nil {
		return types.AgentOutput{}, fmt.Errorf("agent(intent): marshal manifest: %w", err)
	}

	result := types.NewAgentOutput("intent", string(content), confidence, tokens, time.Since(start).Milliseconds())
	result.Metadata["manifest"] = out
	return result, nil
}

func parseIntentResponse(raw string) (intentResponse, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	var parsed intentResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &parsed); err != nil {
		return intentResponse{}, err
	}
	return parsed, nil
}

func buildManifest(r intentResponse) types.Manifest {
	m := types.Manifest{
		Telos:       r.Telos,
		QueryType:   types.QueryType(r.QueryType),
		Constraints: r.Constraints,
		Priority:    types.Priority(r.Priority),
		Persona: types.Persona{
			Expertise: types.Expertise(r.Persona.Expertise),
			Style:     types.Style(r.Persona.Style),
		},
		ContextHints: types.ContextHints{
			RelevantPaths: r.ContextHints.RelevantPaths,
			Domain:        r.ContextHints.Domain,
		},
		VerificationScope: types.VerificationScope{
			CheckFacts:    r.VerificationScope.CheckFacts,
			CheckHardware: r.VerificationScope.CheckHardware,
			CheckSafety:   r.VerificationScope.CheckSafety,
		},
		Round: 1,
	}
	if m.Priority == "" {
		m.Priority = types.PrioritySpeed
	}
	if m.Persona.Expertise == "" {
		m.Persona.Expertise = types.ExpertiseIntermediate
	}
	if m.Persona.Style == "" {
		m.Persona.Style = types.StyleTechnical
	}
	return m
}

// intentConfidence implements the spec'd heuristic: start at 1.0, subtract
// 0.15 for a very short raw prompt, subtract 0.10 for an unconstrained
// generate query, add 0.05 for a non-empty domain hint, subtract 0.10 when
// telos looks like it echoed the whole prompt. Clamped to [0, 1].
func intentConfidence(rawPrompt string, m types.Manifest) float64 {
	confidence := 1.0
	if len(strings.Fields(rawPrompt)) < 5 {
		confidence -= 0.15
	}
	if m.QueryType == types.QueryGenerate && len(m.Constraints) == 0 {
		confidence -= 0.10
	}
	if strings.TrimSpace(m.ContextHints.Domain) != "" {
		confidence += 0.05
	}
	if len(m.Telos) > 200 {
		confidence -= 0.10
	}
	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func classifyModelError(agentName string, err error) error {
	var llmErr *llm.Error
	if e, ok := err.(*llm.Error); ok {
		llmErr = e
	}
	if llmErr != nil && llmErr.Kind == llm.KindTimeout {
		return &Error{Kind: KindModelTimeout, Agent: agentName, Msg: "model call timed out", Err: err}
	}
	return &Error{Kind: KindModelUnavailable, Agent: agentName, Msg: "model call failed", Err: err}
}

var _ Agent = (*Intent)(nil)
