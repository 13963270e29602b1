package station

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `
	id, address, plug_type, power_kw,
	operator, pricing, map_url,
	lat, lon,
	created_at, updated_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL station repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a station by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM custom_stations WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves one page of stations ordered by ID.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := `
		SELECT ` + recordColumns + `
		FROM custom_stations
		WHERE ($1 = '' OR id > $1)
		ORDER BY id
		LIMIT $2
	`

	records, err := r.queryRecords(ctx, query, opts.Cursor, fetchLimit)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: records}
	if len(records) > limit {
		result.Items = records[:limit]
		result.NextCursor = records[limit-1].ID
	}
	return result, nil
}

// ListAll retrieves every station ordered by creation time.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM custom_stations
		ORDER BY created_at, id
	`
	return r.queryRecords(ctx, query)
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// scanRecord scans a station from a single row.
func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.Address,
		&rec.PlugType,
		&rec.PowerKW,
		&rec.Operator,
		&rec.Pricing,
		&rec.MapURL,
		&rec.Lat,
		&rec.Lon,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create creates a new station.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO custom_stations (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Address,
		rec.PlugType,
		rec.PowerKW,
		rec.Operator,
		rec.Pricing,
		rec.MapURL,
		rec.Lat,
		rec.Lon,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// Update updates an existing station.
func (r *PostgresRepository) Update(ctx context.Context, rec *Record) error {
	query := `
		UPDATE custom_stations SET
			address = $2,
			plug_type = $3,
			power_kw = $4,
			operator = $5,
			pricing = $6,
			map_url = $7,
			lat = $8,
			lon = $9,
			updated_at = $10
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Address,
		rec.PlugType,
		rec.PowerKW,
		rec.Operator,
		rec.Pricing,
		rec.MapURL,
		rec.Lat,
		rec.Lon,
		rec.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrStationNotFound
	}
	return nil
}

// Delete deletes a station by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM custom_stations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStationNotFound
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
