package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollcall/internal/qrpayload"
)

// Repository persists attendance data in Postgres. It implements both
// Sink and Replacer; marks therefore always run the transactional
// replace path against this store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, kind, person_id, context_id, status, custom_label, day, occurred_at, created_at`

// DeleteForDay removes any record for the (kind, person, day) key.
func (r *Repository) DeleteForDay(ctx context.Context, kind qrpayload.Kind, personID string, day Day) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance_records
		WHERE kind = $1 AND person_id = $2 AND day = $3
	`, kind, personID, day)
	return err
}

// Insert writes a new record.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, kind, person_id, context_id, status, custom_label, day, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, rec.ID, rec.Kind, rec.PersonID, rec.ContextID, rec.Status, rec.CustomLabel, rec.Day, rec.Timestamp)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ReplaceForDay deletes and inserts inside one transaction so the
// person's day never ends up with zero or two records.
func (r *Repository) ReplaceForDay(ctx context.Context, rec Record) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attendance_records
		WHERE kind = $1 AND person_id = $2 AND day = $3
	`, rec.Kind, rec.PersonID, rec.Day); err != nil {
		return Record{}, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, kind, person_id, context_id, status, custom_label, day, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, rec.ID, rec.Kind, rec.PersonID, rec.ContextID, rec.Status, rec.CustomLabel, rec.Day, rec.Timestamp)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE id = $1
	`, id)
	return scanRecord(row)
}

// Filter narrows ListRecords. Zero values mean no constraint.
type Filter struct {
	Day       Day
	Kind      qrpayload.Kind
	ContextID string
	PersonID  string
	Limit     int
	Offset    int
}

// ListRecords returns records matching the filter, newest first.
func (r *Repository) ListRecords(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	args := []any{}
	clauses := []string{}
	add := func(col string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Day != "" {
		add("day", f.Day)
	}
	if f.Kind != "" {
		add("kind", f.Kind)
	}
	if f.ContextID != "" {
		add("context_id", f.ContextID)
	}
	if f.PersonID != "" {
		add("person_id", f.PersonID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var contextID, customLabel *string
	var day time.Time
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.PersonID, &contextID, &rec.Status, &customLabel, &day, &rec.Timestamp, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if contextID != nil {
		rec.ContextID = *contextID
	}
	if customLabel != nil {
		rec.CustomLabel = *customLabel
	}
	rec.Day = DayOf(day)
	return rec, nil
}

// UpsertStation ensures a scanner station record exists.
func (r *Repository) UpsertStation(ctx context.Context, stationID string) error {
	if stationID == "" {
		return errors.New("station id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (station_id)
		VALUES ($1)
		ON CONFLICT (station_id) DO NOTHING
	`, stationID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, stationID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (station_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, stationID, token, expiresAt)
	return err
}
