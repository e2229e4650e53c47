package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sgx-labs/tripartite/internal/knowledge"
)

type fixedEmbedder struct{ dims int }

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dims)
	v[0] = 1
	return v, nil
}
func (f fixedEmbedder) Dimensions() int { return f.dims }

func TestWalkDirsSkipsGitAndBuildDirs(t *testing.T) {
	root := t.TempDir()
	mkdirAll(t, filepath.Join(root, "notes", "nested"))
	mkdirAll(t, filepath.Join(root, ".git"))
	mkdirAll(t, filepath.Join(root, "node_modules"))

	got := walkDirs(root)
	relSet := make(map[string]bool, len(got))
	for _, p := range got {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatalf("rel path: %v", err)
		}
		relSet[filepath.ToSlash(rel)] = true
	}

	if !relSet["."] {
		t.Fatalf("expected root in watched dirs")
	}
	if !relSet["notes"] || !relSet["notes/nested"] {
		t.Fatalf("expected notes dirs to be watched, got: %#v", relSet)
	}
	if relSet[".git"] {
		t.Fatalf("expected .git to be skipped")
	}
	if relSet["node_modules"] {
		t.Fatalf("expected node_modules to be skipped")
	}
}

func TestIngestFileAddsChunkToStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	store, err := knowledge.Open(dbPath, 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ingester := knowledge.NewIngester(store, fixedEmbedder{dims: 4}, 0)

	root := t.TempDir()
	notePath := filepath.Join(root, "note.md")
	if err := os.WriteFile(notePath, []byte("# Title\n\nSome indexable body content."), 0o644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	ingestFile(context.Background(), ingester, notePath, root)

	chunks, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected the ingested file to produce at least one retrievable chunk")
	}
	if chunks[0].SourcePath != "note.md" {
		t.Fatalf("expected source path note.md, got %q", chunks[0].SourcePath)
	}
}

func TestIngestFileIsIdempotentOnRepeat(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "knowledge.db")
	store, err := knowledge.Open(dbPath, 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ingester := knowledge.NewIngester(store, fixedEmbedder{dims: 4}, 0)
	root := t.TempDir()
	notePath := filepath.Join(root, "note.md")
	os.WriteFile(notePath, []byte("content body"), 0o644)

	ingestFile(context.Background(), ingester, notePath, root)
	ingestFile(context.Background(), ingester, notePath, root)

	chunks, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	count := 0
	for _, c := range chunks {
		if c.SourcePath == "note.md" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one chunk after re-ingesting the same file, got %d", count)
	}
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
