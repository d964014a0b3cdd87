package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("calls: record not found")
	ErrInvalidRecord = errors.New("calls: invalid record")
)

// Repository persists call history. Records are insert-only.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, clinicID, id string) (Record, error)
	ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Record, error)
}

func validate(r Record) error {
	if r.ID == "" || r.ClinicID == "" || r.SessionChannel == "" {
		return ErrInvalidRecord
	}
	if !r.Kind.Valid() || r.Status == "" {
		return ErrInvalidRecord
	}
	return nil
}

// PostgresRepo stores history in the call_records table (see schema.sql).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	const q = `
INSERT INTO call_records (
  id, clinic_id, session_channel, caller_id, callee_id, kind,
  status, end_reason, started_at, connected_at, ended_at, duration
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.ClinicID,
		rec.SessionChannel,
		rec.CallerID,
		rec.CalleeID,
		string(rec.Kind),
		string(rec.Status),
		string(rec.EndReason),
		rec.StartedAt,
		rec.ConnectedAt,
		rec.EndedAt,
		rec.DurationSeconds,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, clinicID, id string) (Record, error) {
	const q = `
SELECT id, clinic_id, session_channel, caller_id, callee_id, kind,
       status, end_reason, started_at, connected_at, ended_at, duration
FROM call_records
WHERE clinic_id = $1 AND id = $2
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, clinicID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) ListByClinic(ctx context.Context, clinicID string, from, to time.Time) ([]Record, error) {
	if clinicID == "" {
		return nil, errors.New("clinic_id required")
	}
	const q = `
SELECT id, clinic_id, session_channel, caller_id, callee_id, kind,
       status, end_reason, started_at, connected_at, ended_at, duration
FROM call_records
WHERE clinic_id = $1 AND started_at >= $2 AND started_at < $3
ORDER BY started_at
`
	rows, err := r.db.QueryContext(ctx, q, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec         Record
		kind        string
		status      string
		reason      string
		connectedAt sql.NullTime
	)
	if err := s.Scan(
		&rec.ID,
		&rec.ClinicID,
		&rec.SessionChannel,
		&rec.CallerID,
		&rec.CalleeID,
		&kind,
		&status,
		&reason,
		&rec.StartedAt,
		&connectedAt,
		&rec.EndedAt,
		&rec.DurationSeconds,
	); err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.Status = Status(status)
	rec.EndReason = EndReason(reason)
	if connectedAt.Valid {
		t := connectedAt.Time
		rec.ConnectedAt = &t
	}
	return rec, nil
}
