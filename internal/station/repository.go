package station

import "context"

// ListOptions contains options for listing first-party stations.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains one page of first-party stations.
type ListResult struct {
	Items      []*Record
	NextCursor string
}

// Repository defines the interface for first-party station persistence.
type Repository interface {
	// Get retrieves a station by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// List retrieves one page of stations ordered by ID.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// ListAll retrieves every station ordered by creation time.
	ListAll(ctx context.Context) ([]*Record, error)

	// Create creates a new station.
	Create(ctx context.Context, r *Record) error

	// Update updates an existing station.
	// Returns ErrStationNotFound if it does not exist.
	Update(ctx context.Context, r *Record) error

	// Delete deletes a station by ID.
	// Returns ErrStationNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
