package vault

import "sync"

type tokenEntry struct {
	original  string
	category  string
	sessionID string
}

// Memory is an in-memory Vault with the same semantics as DB — used by
// tests and by ephemeral sessions that don't need durability. It holds the
// same shared-counter + mutex-around-synchronous-ops discipline.
type Memory struct {
	mu       sync.Mutex
	tokens   map[string]tokenEntry
	counters *counters
}

// NewMemory constructs an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{
		tokens:   make(map[string]tokenEntry),
		counters: newCounters(),
	}
}

// Store mints and persists a token mapping in memory.
func (m *Memory) Store(original, category, sessionID string) (string, error) {
	if err := validateStoreInput(category, sessionID); err != nil {
		return "", err
	}
	n, err := m.counters.next(category)
	if err != nil {
		return "", err
	}
	token := tokenFor(category, n)

	m.mu.Lock()
	m.tokens[token] = tokenEntry{original: original, category: category, sessionID: sessionID}
	m.mu.Unlock()
	return token, nil
}

// Retrieve looks up a token, branching on existence only after the lookup.
func (m *Memory) Retrieve(token string) (string, bool, error) {
	m.mu.Lock()
	entry, ok := m.tokens[token]
	m.mu.Unlock()
	if !ok {
		return "", false, nil
	}
	return entry.original, true, nil
}

// ClearSession deletes all entries belonging to sessionID. Counters persist.
func (m *Memory) ClearSession(sessionID string) error {
	m.mu.Lock()
	for token, entry := range m.tokens {
		if entry.sessionID == sessionID {
			delete(m.tokens, token)
		}
	}
	m.mu.Unlock()
	return nil
}

// SessionStats tallies per-category token counts for sessionID.
func (m *Memory) SessionStats(sessionID string) (SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := SessionStats{ByCategory: map[string]int{}}
	for _, entry := range m.tokens {
		if entry.sessionID == sessionID {
			stats.ByCategory[entry.category]++
			stats.TotalTokens++
		}
	}
	return stats, nil
}

var _ Vault = (*Memory)(nil)
var _ Vault = (*DB)(nil)
