package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sgx-labs/tripartite/internal/knowledge"
	"github.com/sgx-labs/tripartite/internal/types"
)

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }
func (f fixedEmbedder) Dimensions() int                                           { return len(f.vec) }

func TestExtractKeyTermsFiltersStopWordsAndShortTokens(t *testing.T) {
	terms := ExtractKeyTerms("How do I fix the race condition in the scheduler?")
	want := map[string]bool{"fix": true, "race": true, "condition": true, "scheduler": true}
	for _, term := range terms {
		if stopWords[term] || len(term) < 3 {
			t.Fatalf("unexpected term survived filtering: %q", term)
		}
	}
	found := map[string]bool{}
	for _, term := range terms {
		found[term] = true
	}
	for w := range want {
		if !found[w] {
			t.Fatalf("expected term %q in %v", w, terms)
		}
	}
}

func TestExtractKeyTermsIncludesConstraints(t *testing.T) {
	terms := ExtractKeyTerms("fix the bug", "must not break backward compatibility", "avoid downtime")
	found := map[string]bool{}
	for _, term := range terms {
		found[term] = true
	}
	for _, w := range []string{"backward", "compatibility", "avoid", "downtime"} {
		if !found[w] {
			t.Fatalf("expected constraint term %q in %v", w, terms)
		}
	}
}

func TestRetrieveForcesRelevantPathsToFullSimilarity(t *testing.T) {
	dir := t.TempDir()
	store, err := knowledge.Open(filepath.Join(dir, "k.db"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	low := types.Chunk{ID: "low", SourcePath: "docs/other.md", Content: "unrelated", DocType: types.DocDocs}
	forced := types.Chunk{ID: "forced", SourcePath: "internal/scheduler.go", Content: "package scheduler", DocType: types.DocCode}
	if err := store.AddChunk(ctx, low, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddChunk(ctx, forced, []float32{0, 0, 1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ranker := New(store, fixedEmbedder{vec: []float32{1, 0, 0, 0}})
	manifest := types.Manifest{
		Telos:        "explain the scheduler",
		ContextHints: types.ContextHints{RelevantPaths: []string{"internal/scheduler.go"}},
	}
	chunks, err := ranker.Retrieve(ctx, manifest, 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}
	if chunks[0].SourcePath != "internal/scheduler.go" {
		t.Fatalf("expected forced-relevant chunk ranked first, got %+v", chunks[0])
	}
	if chunks[0].CosineSimilarity != 1.0 {
		t.Fatalf("expected forced similarity 1.0, got %f", chunks[0].CosineSimilarity)
	}
}

func TestPackContextRespectsBudgetAndStopsBeforeOverflow(t *testing.T) {
	chunks := []types.Chunk{
		{SourcePath: "a.md", Content: "short content here", DocType: types.DocDocs, FinalScore: 0.9},
		{SourcePath: "b.md", Content: "also fairly short content", DocType: types.DocDocs, FinalScore: 0.5},
	}
	packed := PackContext(chunks, 10)
	if packed == "" {
		t.Fatalf("expected at least the first chunk to fit")
	}
	if len(packed) > 4*200 {
		t.Fatalf("packed context grew unexpectedly large: %d bytes", len(packed))
	}
}

func TestPackContextCodeChunkGetsLanguageFence(t *testing.T) {
	chunks := []types.Chunk{
		{SourcePath: "main.go", Content: "func main() {}", DocType: types.DocCode, Language: "go", FinalScore: 0.8},
	}
	packed := PackContext(chunks, 1000)
	if !contains(packed, "```go") {
		t.Fatalf("expected go-tagged fence, got %q", packed)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
