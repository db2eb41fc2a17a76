package store

import (
	"context"
	"sync"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// MemoryStore is a concurrency-safe in-memory dataset. History is unbounded.
type MemoryStore struct {
	mu   sync.RWMutex
	rows prices.Dataset
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith creates a MemoryStore seeded with ds.
func NewMemoryStoreWith(ds prices.Dataset) *MemoryStore {
	return &MemoryStore{rows: ds.Clone()}
}

// Load returns a copy of the stored rows.
func (s *MemoryStore) Load(_ context.Context) (prices.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rows == nil {
		return prices.Dataset{}, nil
	}
	return s.rows.Clone(), nil
}

// Save replaces the stored rows with a copy of ds.
func (s *MemoryStore) Save(_ context.Context, ds prices.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = ds.Clone()
	return nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error {
	return nil
}
