package profile

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository stores profile rows in an in-process map, for local development and tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	data map[string]Profile
}

// NewInMemoryRepository constructs a repository seeded with optional initial rows.
func NewInMemoryRepository(initial []Profile) *InMemoryRepository {
	data := make(map[string]Profile, len(initial))
	for _, p := range initial {
		data[p.ID] = p
	}
	return &InMemoryRepository{data: data}
}

// Get returns the row for userID, or nil when none exists.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Upsert merges p onto the stored row, creating it if needed.
func (r *InMemoryRepository) Upsert(_ context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		return Profile{}, &ValidationError{Message: "profile id is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[p.ID]
	if !ok {
		now := time.Now().UTC()
		existing = Profile{ID: p.ID, CreatedAt: &now, UpdatedAt: &now}
	}
	stored := existing.Merge(p)
	r.data[p.ID] = stored
	return stored, nil
}

// Delete removes the row for userID. Deleting a missing row is not an error.
func (r *InMemoryRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, userID)
	return nil
}
