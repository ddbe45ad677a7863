package wishlist

import (
	"context"
	"sync"
)

// InMemoryRepository keeps waitlist entries in process.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Create appends entry.
func (r *InMemoryRepository) Create(_ context.Context, entry Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return entry, nil
}

// List returns every entry in insertion order.
func (r *InMemoryRepository) List(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}
