package station

import (
	"context"
	"sort"
	"sync"
)

const defaultListLimit = 50

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development. Production should use
// PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	stations map[string]*Record
}

// NewInMemoryRepository creates a new in-memory station repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		stations: make(map[string]*Record),
	}
}

// Get retrieves a station by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.stations[id]
	if !ok {
		return nil, ErrStationNotFound
	}
	cpy := *rec
	return &cpy, nil
}

// List retrieves one page of stations ordered by ID.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids := make([]string, 0, len(r.stations))
	for id := range r.stations {
		if opts.Cursor == "" || id > opts.Cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	result := &ListResult{}
	for _, id := range ids {
		if len(result.Items) == limit {
			result.NextCursor = result.Items[limit-1].ID
			break
		}
		cpy := *r.stations[id]
		result.Items = append(result.Items, &cpy)
	}
	return result, nil
}

// ListAll retrieves every station ordered by creation time.
func (r *InMemoryRepository) ListAll(_ context.Context) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.stations))
	for _, rec := range r.stations {
		cpy := *rec
		out = append(out, &cpy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create creates a new station.
func (r *InMemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *rec
	r.stations[rec.ID] = &cpy
	return nil
}

// Update updates an existing station.
func (r *InMemoryRepository) Update(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stations[rec.ID]; !ok {
		return ErrStationNotFound
	}
	cpy := *rec
	r.stations[rec.ID] = &cpy
	return nil
}

// Delete deletes a station by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stations[id]; !ok {
		return ErrStationNotFound
	}
	delete(r.stations, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
