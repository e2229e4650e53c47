package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sgx-labs/tripartite/internal/types"
)

func TestOpenRejectsInvalidDimensions(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "k.db"), 0); err == nil {
		t.Fatalf("expected error for zero dimensions")
	}
	if _, err := Open(filepath.Join(dir, "k.db"), MaxDimensions+1); err == nil {
		t.Fatalf("expected error for over-max dimensions")
	}
}

func TestAddChunkAndSearchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "k.db"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	chunk := types.Chunk{
		ID:         "c1",
		Content:    "func main() {}",
		SourcePath: "main.go",
		DocType:    types.DocCode,
		Language:   "go",
	}
	if err := db.AddChunk(ctx, chunk, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("add chunk: %v", err)
	}

	got, ok, err := db.GetChunk("c1")
	if err != nil || !ok {
		t.Fatalf("get chunk: ok=%v err=%v", ok, err)
	}
	if got.SourcePath != "main.go" || got.DocType != types.DocCode {
		t.Fatalf("unexpected chunk: %+v", got)
	}

	results, err := db.Search(ctx, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("expected 1 result matching c1, got %+v", results)
	}
}

func TestAddChunkRejectsWrongWidth(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "k.db"), 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	err = db.AddChunk(context.Background(), types.Chunk{ID: "c1"}, []float32{1, 2})
	if err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestAddChunkUpsertsOnRepeatID(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "k.db"), 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	chunk := types.Chunk{ID: "c1", Content: "v1", HasRecency: true, DaysSinceUpdate: 0}
	if err := db.AddChunk(ctx, chunk, []float32{1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	chunk.Content = "v2"
	if err := db.AddChunk(ctx, chunk, []float32{0, 1}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	got, ok, err := db.GetChunk("c1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Content != "v2" {
		t.Fatalf("expected upserted content v2, got %q", got.Content)
	}
}
