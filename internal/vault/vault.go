// Package vault implements the session-scoped bidirectional token map
// between opaque redaction tokens and the original spans they stand in
// for. Category counters are global to the vault's lifetime so that no
// token is ever reissued, even across sessions.
package vault

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sgx-labs/tripartite/internal/types"
)

// Kind distinguishes the typed failure modes a Vault can return.
type Kind string

// Supported failure kinds. None are retried internally.
const (
	KindInvalidInput       Kind = "invalid_input"
	KindCounterOverflow    Kind = "token_counter_overflow"
	KindStorage            Kind = "storage_error"
)

// Error is a typed vault failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("vault: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// SessionStats summarizes a session's token usage, grouped by category.
type SessionStats struct {
	TotalTokens int
	ByCategory  map[string]int
}

// Vault stores the bidirectional token <-> original mapping.
//
// Retrieve is timing-neutral with respect to hit/miss: every call performs
// exactly one direct primary-key lookup regardless of whether the token
// exists, so an observer timing individual calls cannot infer existence
// from latency alone (the actual timing-neutral guarantee for bulk
// reinflation lives in the Privacy Proxy, which issues exactly one
// Retrieve per candidate token it finds).
type Vault interface {
	Store(original, category, sessionID string) (token string, err error)
	Retrieve(token string) (original string, ok bool, err error)
	ClearSession(sessionID string) error
	SessionStats(sessionID string) (SessionStats, error)
}

// counters tracks the next-token-number per category, shared by both the
// SQLite-backed and in-memory implementations.
type counters struct {
	mu sync.Mutex
	m  map[string]*uint32
}

func newCounters() *counters {
	return &counters{m: make(map[string]*uint32)}
}

// next returns the next counter value for category, saturating at
// math.MaxUint32 and reporting overflow rather than wrapping.
func (c *counters) next(category string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr, ok := c.m[category]
	if !ok {
		v := uint32(0)
		ptr = &v
		c.m[category] = ptr
	}
	if *ptr == math.MaxUint32 {
		return 0, &Error{Kind: KindCounterOverflow, Msg: fmt.Sprintf("category %q counter overflow", category)}
	}
	next := atomic.AddUint32(ptr, 1)
	return next, nil
}

// observe raises the category's counter floor to at least n, used when
// reconstructing counter state from durable storage on Open.
func (c *counters) observe(category string, n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr, ok := c.m[category]
	if !ok {
		v := n
		c.m[category] = &v
		return
	}
	for {
		cur := atomic.LoadUint32(ptr)
		if cur >= n {
			return
		}
		if atomic.CompareAndSwapUint32(ptr, cur, n) {
			return
		}
	}
}

func tokenFor(category string, n uint32) string {
	return fmt.Sprintf("[%s_%04d]", category, n)
}

func validateStoreInput(category, sessionID string) error {
	if err := types.ValidateCategory(category); err != nil {
		return &Error{Kind: KindInvalidInput, Msg: err.Error()}
	}
	if err := types.ValidateSessionID(sessionID); err != nil {
		return &Error{Kind: KindInvalidInput, Msg: err.Error()}
	}
	return nil
}

// --- SQLite-backed durable vault ---------------------------------------

// DB is the SQLite-backed Vault. It holds an internal mutex around the
// underlying connection: every public method acquires the lock, performs
// a synchronous statement, releases, and returns — no suspension point is
// ever reached while the lock is held, matching the store layer's
// lock-do-unlock discipline.
type DB struct {
	conn     *sql.DB
	mu       sync.Mutex
	counters *counters
}

// Open opens or creates the durable token vault at path, reconstructing
// category counters from MAX(token) per category as spec'd.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Kind: KindStorage, Msg: "create data dir", Err: err}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, &Error{Kind: KindStorage, Msg: "open db", Err: err}
	}
	db := &DB{conn: conn, counters: newCounters()}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := db.loadCounters(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) migrate() error {
	_, err := d.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			original TEXT NOT NULL,
			category TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tokens_session ON tokens(session_id);
	`)
	if err != nil {
		return &Error{Kind: KindStorage, Msg: "migrate schema", Err: err}
	}
	return nil
}

// loadCounters reconstructs the in-memory per-category counters from the
// durable table: max counter per category, plus one.
func (d *DB) loadCounters() error {
	rows, err := d.conn.Query(`SELECT category, token FROM tokens`)
	if err != nil {
		return &Error{Kind: KindStorage, Msg: "load counters", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var category, token string
		if err := rows.Scan(&category, &token); err != nil {
			return &Error{Kind: KindStorage, Msg: "scan counter row", Err: err}
		}
		var n uint32
		if _, err := fmt.Sscanf(token, "["+category+"_%d]", &n); err == nil {
			d.counters.observe(category, n)
		}
	}
	return rows.Err()
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// Store validates category/session_id, mints a new token for the category,
// and persists the mapping atomically in a single statement.
func (d *DB) Store(original, category, sessionID string) (string, error) {
	if err := validateStoreInput(category, sessionID); err != nil {
		return "", err
	}
	n, err := d.counters.next(category)
	if err != nil {
		return "", err
	}
	token := tokenFor(category, n)

	d.mu.Lock()
	_, err = d.conn.Exec(
		`INSERT INTO tokens (token, original, category, session_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		token, original, category, sessionID, time.Now().UTC(),
	)
	d.mu.Unlock()
	if err != nil {
		return "", &Error{Kind: KindStorage, Msg: "store token", Err: err}
	}
	return token, nil
}

// Retrieve performs a single direct primary-key lookup and returns through
// the same path whether or not the token exists.
func (d *DB) Retrieve(token string) (string, bool, error) {
	d.mu.Lock()
	var original string
	err := d.conn.QueryRow(`SELECT original FROM tokens WHERE token = ?`, token).Scan(&original)
	d.mu.Unlock()

	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, &Error{Kind: KindStorage, Msg: "retrieve token", Err: err}
	default:
		return original, true, nil
	}
}

// ClearSession removes all mappings for sessionID. Counters are untouched.
func (d *DB) ClearSession(sessionID string) error {
	d.mu.Lock()
	_, err := d.conn.Exec(`DELETE FROM tokens WHERE session_id = ?`, sessionID)
	d.mu.Unlock()
	if err != nil {
		return &Error{Kind: KindStorage, Msg: "clear session", Err: err}
	}
	return nil
}

// SessionStats returns per-category token counts for sessionID.
func (d *DB) SessionStats(sessionID string) (SessionStats, error) {
	d.mu.Lock()
	rows, err := d.conn.Query(`SELECT category, COUNT(*) FROM tokens WHERE session_id = ? GROUP BY category`, sessionID)
	d.mu.Unlock()
	if err != nil {
		return SessionStats{}, &Error{Kind: KindStorage, Msg: "session stats", Err: err}
	}
	defer rows.Close()

	stats := SessionStats{ByCategory: map[string]int{}}
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return SessionStats{}, &Error{Kind: KindStorage, Msg: "scan session stats", Err: err}
		}
		stats.ByCategory[category] = count
		stats.TotalTokens += count
	}
	return stats, rows.Err()
}
