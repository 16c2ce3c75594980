package verify

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists verification data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Find returns the current record for (token, meal, date), or nil.
func (r *Repository) Find(ctx context.Context, token string, meal MealType, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token, meal_type, date, status, verified_at, attempted_at, created_at
		FROM meal_ledger
		WHERE token = $1 AND meal_type = $2 AND date = $3::date
	`, token, string(meal), date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Create inserts a new record. The unique key on (token, meal_type,
// date) turns a lost race into ErrDuplicateKey instead of a second
// verified row.
func (r *Repository) Create(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO meal_ledger (id, token, meal_type, date, status, verified_at, attempted_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
		ON CONFLICT (token, meal_type, date) DO NOTHING
	`, rec.ID, rec.Token, string(rec.Meal), rec.Date, string(rec.Status), rec.VerifiedAt, rec.AttemptedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// Update applies a status transition only if the stored row still
// matches prev (compare-and-swap on status + attempted_at).
func (r *Repository) Update(ctx context.Context, prev, next Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meal_ledger
		SET status = $5, verified_at = $6, attempted_at = $7
		WHERE token = $1 AND meal_type = $2 AND date = $3::date
		  AND status = $4 AND attempted_at = $8
	`, prev.Token, string(prev.Meal), prev.Date,
		string(prev.Status), string(next.Status), next.VerifiedAt, next.AttemptedAt, prev.AttemptedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleRecord
	}
	return nil
}

// IsDenied reports whether the token has an active denial entry. The
// denial table is written by an external admin flow; this is the only
// read path the core uses.
func (r *Repository) IsDenied(ctx context.Context, token string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT active FROM denial_entries WHERE token = $1
	`, token)
	var active bool
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// VerifiedCountsByMeal counts verified records per meal type over an
// inclusive date range.
func (r *Repository) VerifiedCountsByMeal(ctx context.Context, from, to string) (map[MealType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT meal_type, COUNT(*)
		FROM meal_ledger
		WHERE status = 'verified' AND date BETWEEN $1::date AND $2::date
		GROUP BY meal_type
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[MealType]int)
	for rows.Next() {
		var meal string
		var n int
		if err := rows.Scan(&meal, &n); err != nil {
			return nil, err
		}
		counts[MealType(meal)] = n
	}
	return counts, rows.Err()
}

// MonthRecords returns a student's records for one calendar month.
func (r *Repository) MonthRecords(ctx context.Context, token string, year int, month time.Month) ([]Record, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token, meal_type, date, status, verified_at, attempted_at, created_at
		FROM meal_ledger
		WHERE token = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, token, first.Format(DateLayout), last.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// InsertAttempt appends an audit row. Called by the worker, never by
// the request path.
func (r *Repository) InsertAttempt(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (id, token, meal_type, reason, granted, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), a.Token, string(a.Meal), a.Reason, a.Granted, a.At)
	return err
}

// UpsertTerminal ensures a terminal record exists.
func (r *Repository) UpsertTerminal(ctx context.Context, terminalID string) error {
	if terminalID == "" {
		return errors.New("terminal id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO terminals (terminal_id)
		VALUES ($1)
		ON CONFLICT (terminal_id) DO NOTHING
	`, terminalID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, terminalID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (terminal_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, terminalID, token, expiresAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var meal, status string
	var date time.Time
	var verifiedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Token, &meal, &date, &status, &verifiedAt, &rec.AttemptedAt, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Meal = MealType(meal)
	rec.Status = Status(status)
	rec.Date = date.Format(DateLayout)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		rec.VerifiedAt = &t
	}
	return &rec, nil
}
