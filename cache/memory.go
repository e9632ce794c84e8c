package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and dry runs. Not durable.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	fingerprint string
	payload     []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

// Get returns the stored payload when the fingerprint matches.
func (s *MemoryStore) Get(_ context.Context, unitID string, phase Phase, fingerprint string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kvKey(unitID, phase)]
	if !ok || e.fingerprint != fingerprint {
		return nil, false, nil
	}
	return e.payload, true, nil
}

// Put stores the record for (unitID, phase).
func (s *MemoryStore) Put(_ context.Context, unitID string, phase Phase, fingerprint string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[kvKey(unitID, phase)] = memEntry{fingerprint: fingerprint, payload: payload}
	return nil
}

// Stats reports the number of stored records.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Entries: len(s.entries)}, nil
}

// Clear removes all records.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memEntry)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
