// Package knowledge implements the retrieval-augmented context assembler's
// durable backing store: a SQLite + sqlite-vec index of document chunks
// plus the embedding provider contract the Retrieval Ranker depends on.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sgx-labs/tripartite/internal/types"
)

func init() {
	sqlite_vec.Auto()
}

// MinDimensions and MaxDimensions bound the embedding vector width a Store
// will accept, per the external-interfaces contract: invalid dimensions
// must fail the Open call rather than silently truncate or pad vectors.
const (
	MinDimensions = 1
	MaxDimensions = 10000
)

// EmbeddingProvider turns text into a fixed-width vector. Implementations
// must return a vector of exactly Dimensions() length or an error.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Store is the knowledge-store external interface: durable chunk storage
// plus nearest-neighbor retrieval by cosine distance. Embedding happens one
// layer up, in Ingester, so Store itself never depends on a model client.
type Store interface {
	AddChunk(ctx context.Context, chunk types.Chunk, embedding []float32) error
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]types.Chunk, error)
	GetChunk(id string) (types.Chunk, bool, error)
	Dimensions() int
	Close() error
}

// DB is the SQLite + sqlite-vec backed Store.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
	dims int
}

func validateDimensions(dims int) error {
	if dims < MinDimensions || dims > MaxDimensions {
		return fmt.Errorf("knowledge: embedding dimensions %d out of range [%d, %d]", dims, MinDimensions, MaxDimensions)
	}
	return nil
}

// Open opens or creates the chunk store at path with the given embedding
// width. Dimensions are validated up front so a misconfigured provider
// fails at startup rather than corrupting the vector index.
func Open(path string, dims int) (*DB, error) {
	if err := validateDimensions(dims); err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("knowledge: create data dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("knowledge: open db: %w", err)
	}
	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("knowledge: sqlite-vec not available: %w", err)
	}

	db := &DB{conn: conn, dims: dims}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			content TEXT NOT NULL,
			doc_type TEXT NOT NULL,
			language TEXT DEFAULT '',
			modified_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source_path ON chunks(source_path)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
			chunk_rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, d.dims),
		`CREATE TABLE IF NOT EXISTS chunk_rowid_map (
			chunk_id TEXT PRIMARY KEY,
			rowid_ref INTEGER NOT NULL UNIQUE
		)`,
	}
	for _, m := range migrations {
		if _, err := d.conn.Exec(m); err != nil {
			return fmt.Errorf("knowledge: migration failed: %w\nsql: %s", err, m)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// Dimensions reports the embedding width this store was opened with.
func (d *DB) Dimensions() int { return d.dims }

// AddChunk persists one chunk and its embedding in a single transaction,
// upserting the vector if the chunk id already exists.
func (d *DB) AddChunk(ctx context.Context, chunk types.Chunk, embedding []float32) error {
	if len(embedding) != d.dims {
		return fmt.Errorf("knowledge: embedding width %d does not match store width %d", len(embedding), d.dims)
	}
	vecBytes, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("knowledge: serialize embedding: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("knowledge: begin tx: %w", err)
	}
	defer tx.Rollback()

	modifiedAt := time.Now().Unix()
	if chunk.HasRecency {
		modifiedAt = time.Now().Add(-time.Duration(chunk.DaysSinceUpdate*24) * time.Hour).Unix()
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO chunks (id, source_path, content, doc_type, language, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.SourcePath, chunk.Content, string(chunk.DocType), chunk.Language, modifiedAt,
	); err != nil {
		return fmt.Errorf("knowledge: insert chunk: %w", err)
	}

	var rowid int64
	err = tx.QueryRow(`SELECT rowid_ref FROM chunk_rowid_map WHERE chunk_id = ?`, chunk.ID).Scan(&rowid)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`INSERT INTO chunks_vec (embedding) VALUES (?)`, vecBytes)
		if err != nil {
			return fmt.Errorf("knowledge: insert vector: %w", err)
		}
		rowid, _ = res.LastInsertId()
		if _, err := tx.Exec(`INSERT INTO chunk_rowid_map (chunk_id, rowid_ref) VALUES (?, ?)`, chunk.ID, rowid); err != nil {
			return fmt.Errorf("knowledge: map rowid: %w", err)
		}
	case err != nil:
		return fmt.Errorf("knowledge: lookup rowid: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE chunks_vec SET embedding = ? WHERE chunk_rowid = ?`, vecBytes, rowid); err != nil {
			return fmt.Errorf("knowledge: update vector: %w", err)
		}
	}

	return tx.Commit()
}

// GetChunk looks up a single chunk by id, without its embedding.
func (d *DB) GetChunk(id string) (types.Chunk, bool, error) {
	d.mu.Lock()
	var c types.Chunk
	var docType string
	var modifiedUnix int64
	err := d.conn.QueryRow(
		`SELECT id, source_path, content, doc_type, language, modified_at FROM chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.SourcePath, &c.Content, &docType, &c.Language, &modifiedUnix)
	d.mu.Unlock()

	switch {
	case err == sql.ErrNoRows:
		return types.Chunk{}, false, nil
	case err != nil:
		return types.Chunk{}, false, fmt.Errorf("knowledge: get chunk: %w", err)
	}
	c.DocType = types.DocType(docType)
	c.DaysSinceUpdate = time.Since(time.Unix(modifiedUnix, 0)).Hours() / 24
	c.HasRecency = true
	return c, true, nil
}

// Search returns the k nearest chunks to queryEmbedding by cosine distance,
// with CosineSimilarity and recency populated but FinalScore left for the
// Retrieval Ranker to compute (source quality weighting is a ranker
// concern, not a storage concern).
func (d *DB) Search(ctx context.Context, queryEmbedding []float32, k int) ([]types.Chunk, error) {
	if len(queryEmbedding) != d.dims {
		return nil, fmt.Errorf("knowledge: query embedding width %d does not match store width %d", len(queryEmbedding), d.dims)
	}
	if k <= 0 {
		k = 5
	}
	vecBytes, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("knowledge: serialize query embedding: %w", err)
	}

	d.mu.Lock()
	rows, err := d.conn.QueryContext(ctx, `
		SELECT c.id, c.source_path, c.content, c.doc_type, c.language, c.modified_at, v.distance
		FROM chunks_vec v
		JOIN chunk_rowid_map m ON m.rowid_ref = v.chunk_rowid
		JOIN chunks c ON c.id = m.chunk_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, vecBytes, k)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var out []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var docType string
		var modifiedUnix int64
		var distance float64
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.Content, &docType, &c.Language, &modifiedUnix, &distance); err != nil {
			return nil, fmt.Errorf("knowledge: scan search row: %w", err)
		}
		c.DocType = types.DocType(docType)
		// sqlite-vec reports L2 distance over normalized vectors; convert
		// to a cosine-similarity-shaped score in [0, 1] for the ranker.
		c.CosineSimilarity = 1 - distance/2
		if c.CosineSimilarity < 0 {
			c.CosineSimilarity = 0
		}
		c.DaysSinceUpdate = time.Since(time.Unix(modifiedUnix, 0)).Hours() / 24
		c.HasRecency = true
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Store = (*DB)(nil)
