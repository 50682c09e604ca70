package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tierguard/internal/constants"
)

const dateLayout = "2006-01-02"

type Repository interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, q Query) (Page, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Export(ctx context.Context, search string) ([]Record, error)
	Stats(ctx context.Context, rng *DateRange) (Stats, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, COALESCE(action_type, ''), COALESCE(username, ''), COALESCE(details, ''),
	COALESCE(timestamp, 0), submission_id, COALESCE(can_approve, TRUE)`

func (r *PostgresRepository) Append(ctx context.Context, rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	var submissionID sql.NullString
	if rec.SubmissionID != "" {
		submissionID = sql.NullString{String: rec.SubmissionID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mod_actions (action_type, username, details, timestamp, submission_id, can_approve)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, rec.ActionType, rec.Identity, rec.Details, unixSeconds(rec.Timestamp), submissionID, rec.Reversible,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, q Query) (Page, error) {
	if q.PageSize <= 0 {
		q.PageSize = constants.AuditPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	offset := (q.Page - 1) * q.PageSize

	var (
		total int
		rows  *sql.Rows
		err   error
	)
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM mod_actions WHERE username ILIKE $1 OR action_type ILIKE $1`,
			pattern,
		).Scan(&total)
		if err != nil {
			return Page{}, fmt.Errorf("failed to count audit records: %w", err)
		}
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM mod_actions
			WHERE username ILIKE $1 OR action_type ILIKE $1
			ORDER BY timestamp DESC LIMIT $2 OFFSET $3`,
			pattern, q.PageSize, offset,
		)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mod_actions`).Scan(&total)
		if err != nil {
			return Page{}, fmt.Errorf("failed to count audit records: %w", err)
		}
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM mod_actions
			ORDER BY timestamp DESC LIMIT $1 OFFSET $2`,
			q.PageSize, offset,
		)
	}
	if err != nil {
		return Page{}, fmt.Errorf("failed to list audit records: %w", err)
	}

	records, err := scanRecords(ctx, rows)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Records:    records,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: TotalPages(total, q.PageSize),
	}, nil
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM mod_actions ORDER BY timestamp DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent audit records: %w", err)
	}
	return scanRecords(ctx, rows)
}

func (r *PostgresRepository) Export(ctx context.Context, search string) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if search != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM mod_actions
			WHERE username ILIKE $1 OR action_type ILIKE $1
			ORDER BY timestamp DESC`,
			"%"+search+"%",
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM mod_actions ORDER BY timestamp DESC`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to export audit records: %w", err)
	}
	return scanRecords(ctx, rows)
}

// Stats groups the log by action type, by day and by user. Without a range
// the type and user breakdowns cover all time and the daily series covers the
// last thirty days.
func (r *PostgresRepository) Stats(ctx context.Context, rng *DateRange) (Stats, error) {
	var (
		where string
		args  []interface{}
	)
	dayWhere := `WHERE timestamp > extract(epoch from now()) - $1`
	dayArgs := []interface{}{int64(constants.StatsDefaultDays * 24 * 60 * 60)}

	if rng != nil {
		where = `WHERE to_timestamp(timestamp) >= $1::date AND to_timestamp(timestamp) < $2::date + interval '1 day'`
		args = []interface{}{rng.Start.Format(dateLayout), rng.End.Format(dateLayout)}
		dayWhere, dayArgs = where, args
	}

	var stats Stats
	var err error

	stats.ByType, err = r.counts(ctx,
		`SELECT COALESCE(action_type, ''), COUNT(*) FROM mod_actions `+where+`
		GROUP BY action_type ORDER BY COUNT(*) DESC`,
		args...)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count actions by type: %w", err)
	}

	stats.ByDay, err = r.counts(ctx,
		`SELECT to_char(to_timestamp(timestamp), 'YYYY-MM-DD') AS day, COUNT(*) FROM mod_actions `+dayWhere+`
		GROUP BY day ORDER BY day ASC`,
		dayArgs...)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count actions by day: %w", err)
	}

	stats.TopUsers, err = r.counts(ctx,
		`SELECT COALESCE(username, ''), COUNT(*) FROM mod_actions `+where+`
		GROUP BY username ORDER BY COUNT(*) DESC LIMIT `+fmt.Sprint(constants.TopUsersLimit),
		args...)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count actions by user: %w", err)
	}

	return stats, nil
}

func (r *PostgresRepository) counts(ctx context.Context, query string, args ...interface{}) ([]Count, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanRecords(ctx context.Context, rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		var (
			rec          Record
			ts           float64
			submissionID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ActionType, &rec.Identity, &rec.Details, &ts, &submissionID, &rec.Reversible); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Timestamp = fromUnixSeconds(ts)
		rec.SubmissionID = submissionID.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, nil
}
