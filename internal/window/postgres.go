package window

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE timestamp < $1`,
		unixSeconds(cutoff(now)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune posts: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return removed, nil
}

func (r *PostgresRepository) Count(ctx context.Context, identity string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE username = $1`,
		identity,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Record(ctx context.Context, identity string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (username, timestamp) VALUES ($1, $2)`,
		identity, unixSeconds(now),
	)
	if err != nil {
		return fmt.Errorf("failed to record post: %w", err)
	}
	return nil
}

// RecordIfUnder serializes callers for the same identity with a transaction
// scoped advisory lock.
func (r *PostgresRepository) RecordIfUnder(ctx context.Context, identity string, now time.Time, limit int) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, identity); err != nil {
		return false, 0, fmt.Errorf("failed to lock window: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM posts WHERE username = $1 AND timestamp < $2`,
		identity, unixSeconds(cutoff(now)),
	); err != nil {
		return false, 0, fmt.Errorf("failed to prune posts: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE username = $1`,
		identity,
	).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	if count >= limit {
		return false, count, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO posts (username, timestamp) VALUES ($1, $2)`,
		identity, unixSeconds(now),
	); err != nil {
		return false, 0, fmt.Errorf("failed to record post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit window: %w", err)
	}
	return true, count + 1, nil
}
