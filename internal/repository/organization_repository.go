package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/edjs/theatre-booking/internal/model"
)

// OrganizationRepo reads and updates organisations.  Verification state is
// changed only inside lifecycle transactions so that a rejection and the
// cascade over its bookings commit together.
type OrganizationRepo struct {
	db *sql.DB
}

// NewOrganizationRepo constructs an OrganizationRepo.
func NewOrganizationRepo(db *sql.DB) *OrganizationRepo { return &OrganizationRepo{db: db} }

const organizationColumns = `id, kind, name, verification_status, max_free_tickets, verified_at, created_at`

func scanOrganization(row rowScanner) (model.Organization, error) {
	var (
		o            model.Organization
		kind, status string
		verifiedAt   sql.NullTime
	)
	if err := row.Scan(&o.ID, &kind, &o.Name, &status, &o.MaxFreeTickets, &verifiedAt, &o.CreatedAt); err != nil {
		return model.Organization{}, err
	}
	o.Kind = model.BookingType(kind)
	o.VerificationStatus = model.VerificationStatus(status)
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		o.VerifiedAt = &t
	}
	return o, nil
}

// GetByID returns the organisation or ErrNotFound.
func (r *OrganizationRepo) GetByID(ctx context.Context, id uint64) (model.Organization, error) {
	return getOrganization(ctx, r.db, id)
}

func getOrganization(ctx context.Context, q querier, id uint64) (model.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = ?`
	o, err := scanOrganization(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Organization{}, ErrNotFound
		}
		return model.Organization{}, err
	}
	return o, nil
}

// Create inserts a pending organisation and sets its ID.
func (r *OrganizationRepo) Create(ctx context.Context, o *model.Organization) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (kind, name, verification_status, max_free_tickets) VALUES (?,?,?,?)`,
		string(o.Kind), o.Name, string(model.VerificationPending), o.MaxFreeTickets,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.VerificationStatus = model.VerificationPending
	o.VerifiedAt = nil
	return nil
}

// UpdateTx writes the verification state of o.
func (r *OrganizationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, o *model.Organization) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE organizations SET verification_status = ?, verified_at = ?, max_free_tickets = ? WHERE id = ?`,
		string(o.VerificationStatus), o.VerifiedAt, o.MaxFreeTickets, o.ID,
	)
	return err
}
