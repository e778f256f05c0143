// This file holds the session queries.  A session is one scheduled
// performance of a spectacle; its three capacity columns are the ceilings
// the ledger accounts against.

package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel comparisons
	"strings"      // building WHERE clauses
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so that read helpers
// can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SessionRepo manages persistence for sessions.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `s.id, s.spectacle_id, sp.title, s.starts_at, s.venue, s.city,
       s.total_capacity, s.b2c_capacity, s.partner_quota, s.session_type, s.status,
       s.individual_price_cents, s.student_price_cents, s.created_at, s.updated_at`

const sessionFrom = ` FROM sessions s JOIN spectacles sp ON sp.id = s.spectacle_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	var typ, status string
	err := row.Scan(
		&s.ID, &s.SpectacleID, &s.SpectacleTitle, &s.StartsAt, &s.Venue, &s.City,
		&s.TotalCapacity, &s.B2CCapacity, &s.PartnerQuota, &typ, &status,
		&s.IndividualPriceCents, &s.StudentPriceCents, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	s.Type = model.SessionType(typ)
	s.Status = model.SessionStatus(status)
	s.StartsAt = s.StartsAt.UTC()
	return s, nil
}

// GetByID retrieves a session by its ID.  It returns ErrNotFound if
// there is no matching row.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (model.Session, error) {
	return getSession(ctx, r.db, id, false)
}

// GetForUpdateTx reads the session and locks its row until tx ends.  Every
// admission decision on the session goes through this lock.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Session, error) {
	return getSession(ctx, tx, id, true)
}

func getSession(ctx context.Context, q querier, id uint64, lock bool) (model.Session, error) {
	query := `SELECT ` + sessionColumns + sessionFrom + ` WHERE s.id = ?`
	if lock {
		query += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, err
	}
	return s, nil
}

// List returns sessions matching f ordered by start time ascending.  When
// nothing matches it returns an empty slice and nil error.
func (r *SessionRepo) List(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	where := []string{}
	args := []any{}
	if f.Type != "" {
		where = append(where, "s.session_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "s.status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "s.starts_at >= ?")
		args = append(args, f.From.UTC().Format("2006-01-02 15:04:05"))
	}
	if f.City != "" {
		where = append(where, "LOWER(s.city) = ?")
		args = append(args, strings.ToLower(f.City))
	}
	if f.SpectacleID != 0 {
		where = append(where, "s.spectacle_id = ?")
		args = append(args, f.SpectacleID)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	query := `SELECT ` + sessionColumns + sessionFrom + ` WHERE ` + cond + ` ORDER BY s.starts_at ASC, s.id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCapacityTx writes the three ceilings of s.  The caller must hold
// the session lock and has already checked the new values against the
// seats consumed.
func (r *SessionRepo) UpdateCapacityTx(ctx context.Context, tx *sql.Tx, s model.Session) error {
	const q = `UPDATE sessions
               SET total_capacity = ?, b2c_capacity = ?, partner_quota = ?, updated_at = ?
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, s.TotalCapacity, s.B2CCapacity, s.PartnerQuota, time.Now().UTC(), s.ID)
	return err
}
