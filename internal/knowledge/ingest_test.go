package knowledge

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeEmbedder returns a fixed-width deterministic vector derived from text
// length, enough to exercise the ingestion and search path without a real
// model.
type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dims)
	v[len(text)%f.dims] = 1
	return v, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dims }

func TestIngestChunksAndEmbeds(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "k.db"), 8)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ing := NewIngester(store, fakeEmbedder{dims: 8}, 50)
	body := strings.Repeat("paragraph text that is reasonably long.\n\n", 5)
	if err := ing.Ingest(context.Background(), "notes/readme.md", body, time.Now()); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0, 0, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one chunk indexed")
	}
}

func TestIngestReingestUpsertsSameIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "k.db"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ing := NewIngester(store, fakeEmbedder{dims: 4}, 1000)
	ctx := context.Background()
	if err := ing.Ingest(ctx, "a.go", "package a", time.Now()); err != nil {
		t.Fatalf("ingest 1: %v", err)
	}
	if err := ing.Ingest(ctx, "a.go", "package a // updated", time.Now()); err != nil {
		t.Fatalf("ingest 2: %v", err)
	}

	chunk, ok, err := store.GetChunk(chunkID("a.go", 0))
	if err != nil || !ok {
		t.Fatalf("expected upserted chunk present: ok=%v err=%v", ok, err)
	}
	if chunk.Content != "package a // updated" {
		t.Fatalf("expected updated content, got %q", chunk.Content)
	}
}

func TestInferDocTypeFromExtension(t *testing.T) {
	if got := inferDocType("internal/foo.go", ""); got != "code" {
		t.Fatalf("expected code, got %s", got)
	}
	if got := inferDocType("README.md", ""); got != "docs" {
		t.Fatalf("expected docs, got %s", got)
	}
}
