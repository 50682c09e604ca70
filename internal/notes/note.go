// Package notes keeps one free-text moderator note per user.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	pkgerrors "tierguard/pkg/errors"
)

type Note struct {
	Identity  string    `json:"username"`
	Text      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
	Moderator string    `json:"moderator"`
}

type Repository interface {
	Upsert(ctx context.Context, note *Note) error
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]Note, error)
	Get(ctx context.Context, identity string) (*Note, error)
	Lookup(ctx context.Context, identities []string) (map[string]Note, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, note *Note) error {
	note.Identity = strings.TrimSpace(note.Identity)
	if note.Identity == "" {
		return pkgerrors.ErrValidation.WithMessage("username is required")
	}
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_notes (username, note, timestamp, moderator)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET note = EXCLUDED.note, timestamp = EXCLUDED.timestamp, moderator = EXCLUDED.moderator
	`, note.Identity, note.Text, unixSeconds(note.Timestamp), note.Moderator)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, identity string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_notes WHERE username = $1`, strings.TrimSpace(identity))
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("no note for %s", identity))
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username, COALESCE(note, ''), COALESCE(timestamp, 0), COALESCE(moderator, '')
		FROM user_notes
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return scanNotes(rows)
}

func (r *PostgresRepository) Get(ctx context.Context, identity string) (*Note, error) {
	var (
		note Note
		ts   float64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT username, COALESCE(note, ''), COALESCE(timestamp, 0), COALESCE(moderator, '')
		FROM user_notes
		WHERE username = $1
	`, identity).Scan(&note.Identity, &note.Text, &ts, &note.Moderator)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("no note for %s", identity))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	note.Timestamp = fromUnixSeconds(ts)
	return &note, nil
}

// Lookup returns the notes for the given identities keyed by identity.
// Identities without a note are absent from the result.
func (r *PostgresRepository) Lookup(ctx context.Context, identities []string) (map[string]Note, error) {
	result := make(map[string]Note)
	if len(identities) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT username, COALESCE(note, ''), COALESCE(timestamp, 0), COALESCE(moderator, '')
		FROM user_notes
		WHERE username = ANY($1)
	`, pq.Array(identities))
	if err != nil {
		return nil, fmt.Errorf("failed to look up notes: %w", err)
	}

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		result[n.Identity] = n
	}
	return result, nil
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var (
			note Note
			ts   float64
		)
		if err := rows.Scan(&note.Identity, &note.Text, &ts, &note.Moderator); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		note.Timestamp = fromUnixSeconds(ts)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

func fromUnixSeconds(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*float64(time.Second))).UTC()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
