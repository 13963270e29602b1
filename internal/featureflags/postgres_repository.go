package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const flagColumns = `key, value, updated_at, updated_by, reason`

const upsertFlagSQL = `
	INSERT INTO feature_flags (key, value, updated_at, updated_by, reason)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at,
		updated_by = EXCLUDED.updated_by,
		reason = EXCLUDED.reason
`

// PostgresRepository stores overrides in the feature_flags table. Values
// are kept as JSONB.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL feature flags repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetFlag returns the override for key.
func (r *PostgresRepository) GetFlag(ctx context.Context, key string) (*Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags WHERE key = $1`

	f, err := scanFlag(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	return f, err
}

// GetAllFlags returns every override.
func (r *PostgresRepository) GetAllFlags(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+flagColumns+` FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query feature flags: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Flag, error) {
		return scanFlag(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan feature flags: %w", err)
	}

	out := make(map[string]*Flag, len(list))
	for _, f := range list {
		out[f.Key] = f
	}
	return out, nil
}

// SetFlags upserts flags in one transaction.
func (r *PostgresRepository) SetFlags(ctx context.Context, flags []*Flag) error {
	batch := &pgx.Batch{}
	for _, f := range flags {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("encode flag %s: %w", f.Key, err)
		}
		batch.Queue(upsertFlagSQL, f.Key, value, f.UpdatedAt, f.UpdatedBy, f.Reason)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ResetFlag deletes the override for key.
func (r *PostgresRepository) ResetFlag(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f         Flag
		value     []byte
		updatedBy *string
		reason    *string
	)
	if err := row.Scan(&f.Key, &value, &f.UpdatedAt, &updatedBy, &reason); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(value, &f.Value); err != nil {
		return nil, fmt.Errorf("decode flag %s: %w", f.Key, err)
	}
	if updatedBy != nil {
		f.UpdatedBy = *updatedBy
	}
	if reason != nil {
		f.Reason = *reason
	}
	return &f, nil
}

var _ Repository = (*PostgresRepository)(nil)
