// Package media re-hosts inline embed payloads for platforms that cannot
// carry attachments. Items live in memory behind random IDs, expire after a
// TTL, and the whole store is capped by a byte budget; nothing is ever
// persisted.
package media

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gruzilkin/urmom-bot/telemetry"
)

// Item is one hosted payload.
type Item struct {
	Data        []byte
	Filename    string
	ContentType string
	StoredAt    time.Time
}

// Store holds items until they expire or the byte budget pushes them out.
type Store struct {
	mu       sync.Mutex
	items    map[string]Item
	order    []string // insertion order for budget eviction
	ttl      time.Duration
	maxBytes int64
	curBytes int64
	now      func() time.Time
}

// NewStore builds a store with the given item lifetime and byte budget.
func NewStore(ttl time.Duration, maxBytes int64) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = 256 * 1024 * 1024
	}
	return &Store{
		items:    make(map[string]Item),
		ttl:      ttl,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Put stores data and returns its ID.
func (s *Store) Put(data []byte, filename, contentType string) string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()
	// Make room; oldest goes first.
	for s.curBytes+int64(len(data)) > s.maxBytes && len(s.order) > 0 {
		s.removeLocked(s.order[0])
	}
	s.items[id] = Item{Data: data, Filename: filename, ContentType: contentType, StoredAt: s.now()}
	s.order = append(s.order, id)
	s.curBytes += int64(len(data))
	telemetry.SetMediaStoreSize(len(s.items), s.curBytes)
	return id
}

// Get returns the item for id if it exists and has not expired.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	if s.now().Sub(item.StoredAt) > s.ttl {
		s.removeLocked(id)
		telemetry.SetMediaStoreSize(len(s.items), s.curBytes)
		return Item{}, false
	}
	return item, true
}

// Len reports the current item count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) removeLocked(id string) {
	item, ok := s.items[id]
	if !ok {
		return
	}
	delete(s.items, id)
	s.curBytes -= int64(len(item.Data))
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) evictExpiredLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, item := range s.items {
		if item.StoredAt.Before(cutoff) {
			s.removeLocked(id)
		}
	}
}

// Sweep evicts expired items; main runs it on a ticker.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	telemetry.SetMediaStoreSize(len(s.items), s.curBytes)
}
