// Package dedup tracks already-processed chat message IDs so a message is
// never embedded twice. The set is an injected interface, not process-global
// state, so the chat layer can run against Postgres in production and a map
// in tests.
package dedup

import (
	"context"
	"database/sql"
	"sync"
)

// Store is a check-and-mark set of message IDs.
type Store interface {
	// Seen reports whether id was already marked, marking it atomically
	// when it was not.
	Seen(ctx context.Context, id string) (bool, error)
}

// Postgres stores seen IDs in the seen_messages table.
type Postgres struct {
	DB *sql.DB
}

// Seen relies on insert-if-absent: zero rows affected means another insert
// already claimed the id.
func (p *Postgres) Seen(ctx context.Context, id string) (bool, error) {
	res, err := p.DB.ExecContext(ctx,
		`INSERT INTO seen_messages (message_id, seen_at) VALUES ($1, NOW()) ON CONFLICT (message_id) DO NOTHING`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Memory is an in-process Store for tests and DB-less runs. It keeps at most
// maxEntries ids, evicting in insertion order.
type Memory struct {
	mu         sync.Mutex
	ids        map[string]struct{}
	order      []string
	maxEntries int
}

// NewMemory returns a bounded in-memory store.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Memory{ids: make(map[string]struct{}), maxEntries: maxEntries}
}

func (m *Memory) Seen(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return true, nil
	}
	m.ids[id] = struct{}{}
	m.order = append(m.order, id)
	if len(m.order) > m.maxEntries {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.ids, oldest)
	}
	return false, nil
}
