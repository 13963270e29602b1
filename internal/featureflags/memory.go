package featureflags

import (
	"context"
	"sync"
)

// InMemoryRepository keeps overrides in process memory. It backs the
// "memory" storage driver and tests.
type InMemoryRepository struct {
	mu        sync.RWMutex
	overrides map[string]Flag
}

// NewInMemoryRepository creates a repository without overrides.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{overrides: make(map[string]Flag)}
}

// NewInMemoryRepositoryWithFlags creates a repository seeded with overrides.
func NewInMemoryRepositoryWithFlags(flags map[string]*Flag) *InMemoryRepository {
	r := NewInMemoryRepository()
	for key, f := range flags {
		r.overrides[key] = *f
	}
	return r
}

// GetFlag returns a copy of the override for key.
func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.overrides[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

// GetAllFlags returns copies of every override.
func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.overrides))
	for key, f := range r.overrides {
		f := f
		out[key] = &f
	}
	return out, nil
}

// SetFlags stores copies of flags under one lock.
func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range flags {
		r.overrides[f.Key] = *f
	}
	return nil
}

// ResetFlag drops the override for key.
func (r *InMemoryRepository) ResetFlag(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.overrides[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.overrides, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
