// Package retrieval implements the Retrieval Ranker: turning a manifest's
// telos and context hints into a scored, budget-packed context block for
// the Logic agent.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/sgx-labs/tripartite/internal/knowledge"
	"github.com/sgx-labs/tripartite/internal/types"
)

// EstimateTokens approximates token count at ~4 characters per token, the
// same rough heuristic used throughout the rest of the stack for budget
// accounting without a real tokenizer dependency.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// stopWords are filtered out of key-term extraction; short connective
// words carry no retrieval signal and only dilute the query embedding.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "and": true, "or": true, "but": true,
	"how": true, "what": true, "why": true, "do": true, "does": true, "did": true,
	"this": true, "that": true, "it": true, "as": true, "at": true, "by": true,
	"from": true, "can": true, "will": true, "should": true, "would": true,
}

// ExtractKeyTerms lowercases and filters telos and any constraints into
// retrieval-relevant terms: words of 3+ characters, stop words removed,
// identifiers (snake_case, dotted paths) left intact rather than split.
func ExtractKeyTerms(telos string, constraints ...string) []string {
	fields := strings.Fields(telos)
	for _, c := range constraints {
		fields = append(fields, strings.Fields(c)...)
	}
	var terms []string
	for _, f := range fields {
		term := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) && r != '_' && r != '.' && r != '/'
		}))
		if len(term) < 3 || stopWords[term] {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// Ranker assembles retrieval-augmented context for the Logic agent.
type Ranker struct {
	store    knowledge.Store
	embedder knowledge.EmbeddingProvider
}

// New builds a Ranker over a knowledge store and the query-side embedding
// provider.
func New(store knowledge.Store, embedder knowledge.EmbeddingProvider) *Ranker {
	return &Ranker{store: store, embedder: embedder}
}

// Retrieve scores up to k chunks for manifest's telos, folding in any
// relevant_paths hints at forced similarity=1.0 so Intent-identified paths
// always surface regardless of embedding distance.
func (r *Ranker) Retrieve(ctx context.Context, manifest types.Manifest, k int) ([]types.Chunk, error) {
	if k <= 0 {
		k = 5
	}

	terms := ExtractKeyTerms(manifest.Telos, manifest.Constraints...)
	queryText := manifest.Telos
	if len(terms) > 0 {
		queryText = strings.Join(terms, " ")
	}

	embedding, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	chunks, err := r.store.Search(ctx, embedding, k*4) // over-fetch (N ≈ 4·k) before re-scoring
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	relevant := make(map[string]bool, len(manifest.ContextHints.RelevantPaths))
	for _, p := range manifest.ContextHints.RelevantPaths {
		relevant[p] = true
	}

	for i := range chunks {
		if relevant[chunks[i].SourcePath] {
			chunks[i].CosineSimilarity = 1.0
		}
		chunks[i].ComputeFinalScore()
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FinalScore != chunks[j].FinalScore {
			return chunks[i].FinalScore > chunks[j].FinalScore
		}
		// Tie-break by shorter source path: a more specific, shallower
		// result is preferred when scores are indistinguishable.
		return len(chunks[i].SourcePath) < len(chunks[j].SourcePath)
	})

	if len(chunks) > k {
		chunks = chunks[:k]
	}
	return chunks, nil
}

// PackContext renders chunks into the context block the Logic agent's
// prompt assembly embeds, bounded to maxTokens (estimated at ~4 chars per
// token). Chunks are taken in their already-ranked order and dropped once
// the budget is exhausted — no silent truncation mid-chunk.
func PackContext(chunks []types.Chunk, maxTokens int) string {
	var b strings.Builder
	used := 0
	for _, c := range chunks {
		header := fmt.Sprintf("--- %s (score=%.3f) ---\n", c.SourcePath, c.FinalScore)
		var body string
		if c.DocType == types.DocCode {
			lang := c.Language
			body = fmt.Sprintf("```%s\n%s\n```\n", lang, c.Content)
		} else {
			body = c.Content + "\n"
		}
		block := header + body
		cost := EstimateTokens(block)
		if used+cost > maxTokens && used > 0 {
			break
		}
		b.WriteString(block)
		b.WriteString("\n")
		used += cost
	}
	return b.String()
}
