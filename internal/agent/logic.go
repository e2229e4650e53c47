package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sgx-labs/tripartite/internal/llm"
	"github.com/sgx-labs/tripartite/internal/retrieval"
	"github.com/sgx-labs/tripartite/internal/types"
)

// chainOfThoughtMarkers strips internal reasoning the model may have
// leaked despite instructions, before the answer ever reaches the user.
var chainOfThoughtMarkers = regexp.MustCompile(`(?is)<think>.*?</think>`)

// Logic synthesizes a candidate answer from the intent manifest, retrieved
// context, and any revision feedback carried from a prior round.
type Logic struct {
	readyFlag
	client     llm.Client
	ranker     *retrieval.Ranker
	enableRAG  bool
	retrievalK int
}

// NewLogic builds a Logic agent. retrievalK defaults to 5 when <= 0.
func NewLogic(client llm.Client, ranker *retrieval.Ranker, enableRAG bool, retrievalK int) *Logic {
	if retrievalK <= 0 {
		retrievalK = 5
	}
	l := &Logic{client: client, ranker: ranker, enableRAG: enableRAG, retrievalK: retrievalK}
	l.setReady(true)
	return l
}

func (l *Logic) Name() string { return "logic" }

// Feedback is carried through AgentOutput.Metadata["feedback"] by the
// orchestrator/engine when re-invoking Logic on a revision round; it is
// not part of the core Manifest schema.
func (l *Logic) Process(ctx context.Context, manifest types.Manifest) (types.AgentOutput, error) {
	start := time.Now()

	var chunks []types.Chunk
	if l.enableRAG && l.ranker != nil {
		var err error
		chunks, err = l.ranker.Retrieve(ctx, manifest, l.retrievalK)
		if err != nil {
			return types.AgentOutput{}, classifyModelError("logic", err)
		}
	}

	systemPrompt := buildLogicSystemPrompt(manifest, chunks)
	userPrompt := manifest.LogosResponse // carries prior revision feedback, if any

	raw, tokens, err := l.client.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return types.AgentOutput{}, classifyModelError("logic", err)
	}

	clean := chainOfThoughtMarkers.ReplaceAllString(raw, "")
	clean = strings.TrimSpace(clean)

	confidence := logicConfidence(manifest, chunks)

	result := types.NewAgentOutput("logic", clean, confidence, tokens, time.Since(start).Milliseconds())
	result.Metadata["sources"] = citedSources(clean, chunks)
	if confidence >= 0.5 {
		result.Vote = types.VoteApprove
	} else {
		result.Vote = types.VoteRevise
	}
	result.HasVote = true
	return result, nil
}

func buildLogicSystemPrompt(manifest types.Manifest, chunks []types.Chunk) string {
	var b strings.Builder
	b.WriteString("You are the Logic agent in a tripartite consensus system. ")
	b.WriteString("Synthesize a candidate answer for the following goal.\n\n")
	fmt.Fprintf(&b, "Telos: %s\n", manifest.Telos)
	if len(manifest.Constraints) > 0 {
		fmt.Fprintf(&b, "Constraints: %s\n", strings.Join(manifest.Constraints, "; "))
	}
	fmt.Fprintf(&b, "Audience: %s expertise, %s style\n\n", manifest.Persona.Expertise, manifest.Persona.Style)

	if len(chunks) > 0 {
		b.WriteString("Retrieved context:\n")
		b.WriteString(retrieval.PackContext(chunks, 4000))
		b.WriteString("\nCite sources you use with [SOURCE: path] notation.\n\n")
	}

	if manifest.LogosResponse != "" {
		b.WriteString("Revision required. Address every constraint below and revise the previous answer; do not start over:\n")
		b.WriteString(manifest.LogosResponse)
		b.WriteString("\n\n")
	}

	b.WriteString("Respond with the answer only, no chain-of-thought.")
	return b.String()
}

func citedSources(answer string, chunks []types.Chunk) []string {
	cited := map[string]bool{}
	for _, c := range chunks {
		marker := fmt.Sprintf("[SOURCE: %s]", c.SourcePath)
		if strings.Contains(answer, marker) {
			cited[c.ID] = true
		}
	}
	out := make([]string, 0, len(cited))
	for id := range cited {
		out = append(out, id)
	}
	return out
}

// logicConfidence implements the spec'd heuristic: base 0.5, up to +0.25
// from average retrieved-chunk cosine relevance, +0.15 when at least one
// chunk is highly relevant (>= 0.8), +0.10 when at least 30% of retrieved
// chunks are code for a generate/transform (code-heavy) query. Clamped to
// [0, 1].
func logicConfidence(manifest types.Manifest, chunks []types.Chunk) float64 {
	confidence := 0.5
	if len(chunks) == 0 {
		return clamp01(confidence)
	}

	var sumRelevance float64
	var highRelevance bool
	var codeCount int
	for _, c := range chunks {
		sumRelevance += c.CosineSimilarity
		if c.CosineSimilarity >= 0.8 {
			highRelevance = true
		}
		if c.DocType == types.DocCode {
			codeCount++
		}
	}
	avgRelevance := sumRelevance / float64(len(chunks))
	confidence += 0.25 * clamp01(avgRelevance)

	if highRelevance {
		confidence += 0.15
	}

	codeHeavy := manifest.QueryType == types.QueryGenerate || manifest.QueryType == types.QueryTransform
	codeRatio := float64(codeCount) / float64(len(chunks))
	if codeHeavy && codeRatio >= 0.3 {
		confidence += 0.10
	}

	return clamp01(confidence)
}

var _ Agent = (*Logic)(nil)
