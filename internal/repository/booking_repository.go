package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// BookingRepo provides persistence for bookings.  A booking row stores
// its seat request in the columns of its variant: number_of_tickets for
// individual and partner bookings, students_count and accompanists_count
// for professional ones.  The seats column always holds the total so that
// the ledger can aggregate without knowing the variant.  All timestamp
// fields are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.session_id, b.user_id, b.organization_id, b.booking_type,
       b.number_of_tickets, b.students_count, b.accompanists_count,
       b.status, b.payment_status, b.payment_method, b.total_amount_cents, b.payment_reference,
       b.contact_name, b.contact_email, b.contact_phone, b.quote_url,
       b.confirmed_at, b.confirmed_by, b.created_at, b.updated_at`

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b                            model.Booking
		orgID, confirmedBy           sql.NullInt64
		tickets, students, companion int
		typ, status, payStatus       string
		payMethod, quoteURL          sql.NullString
		confirmedAt                  sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.SessionID, &b.UserID, &orgID, &typ,
		&tickets, &students, &companion,
		&status, &payStatus, &payMethod, &b.TotalAmountCents, &b.PaymentRef,
		&b.Contact.Name, &b.Contact.Email, &b.Contact.Phone, &quoteURL,
		&confirmedAt, &confirmedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Type = model.BookingType(typ)
	b.Status = model.Status(status)
	b.PaymentStatus = model.PaymentStatus(payStatus)
	if payMethod.Valid {
		b.PaymentMethod = model.PaymentMethod(payMethod.String)
	}
	if b.Type.Professional() {
		b.Seats = model.ProfessionalSeats{Students: students, Accompanists: companion}
	} else {
		b.Seats = model.IndividualSeats{Tickets: tickets}
	}
	if orgID.Valid {
		id := uint64(orgID.Int64)
		b.OrganizationID = &id
	}
	if quoteURL.Valid {
		u := quoteURL.String
		b.QuoteURL = &u
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		b.ConfirmedAt = &t
	}
	if confirmedBy.Valid {
		by := uint64(confirmedBy.Int64)
		b.ConfirmedBy = &by
	}
	return b, nil
}

// seatColumns splits a seat request into its stored columns.
func seatColumns(s model.Seats) (tickets, students, accompanists int) {
	switch v := s.(type) {
	case model.IndividualSeats:
		return v.Tickets, 0, 0
	case model.ProfessionalSeats:
		return 0, v.Students, v.Accompanists
	}
	return 0, 0, 0
}

// CreateTx inserts a new booking within the scope of an existing
// transaction and populates the generated ID and timestamps on b.  The
// caller must commit or rollback the transaction.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (session_id, user_id, organization_id, booking_type, category,
                   number_of_tickets, students_count, accompanists_count, seats,
                   status, payment_status, payment_method, total_amount_cents, payment_reference,
                   contact_name, contact_email, contact_phone, quote_url, confirmed_at, confirmed_by,
                   created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	tickets, students, accompanists := seatColumns(b.Seats)
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, q,
		b.SessionID, b.UserID, b.OrganizationID, string(b.Type), string(b.Category()),
		tickets, students, accompanists, b.SeatCount(),
		string(b.Status), string(b.PaymentStatus), nullString(string(b.PaymentMethod)), b.TotalAmountCents, b.PaymentRef,
		b.Contact.Name, b.Contact.Email, b.Contact.Phone, b.QuoteURL, b.ConfirmedAt, b.ConfirmedBy,
		now, now,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// UpdateTx writes the mutable columns of b: status, payment, confirmation
// and quote.  Seat counts are immutable once a booking exists.
func (r *BookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `UPDATE bookings
               SET status = ?, payment_status = ?, payment_method = ?, payment_reference = ?,
                   quote_url = ?, confirmed_at = ?, confirmed_by = ?, updated_at = ?
               WHERE id = ?`
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, q,
		string(b.Status), string(b.PaymentStatus), nullString(string(b.PaymentMethod)), b.PaymentRef,
		b.QuoteURL, b.ConfirmedAt, b.ConfirmedBy, now, b.ID,
	)
	if err != nil {
		return err
	}
	b.UpdatedAt = now
	return nil
}

// SetQuoteURL records the generated quote document of a booking outside
// any lifecycle transaction.
func (r *BookingRepo) SetQuoteURL(ctx context.Context, id uint64, url string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bookings SET quote_url = ?, updated_at = ? WHERE id = ?`, url, time.Now().UTC(), id)
	return err
}

// GetByID returns a single booking.  When no booking with the specified
// ID exists, ErrNotFound is returned.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

// GetForUpdateTx reads a booking and locks its row until tx ends.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	return getBooking(ctx, tx, id, true)
}

func getBooking(ctx context.Context, q querier, id uint64, lock bool) (model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

// ListBySession returns the bookings of a session whose status is in
// statuses (all statuses when empty), oldest first.
func (r *BookingRepo) ListBySession(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return listBookings(ctx, r.db, "b.session_id = ?", sessionID, statuses)
}

// ListBySessionTx is ListBySession inside tx.
func (r *BookingRepo) ListBySessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return listBookings(ctx, tx, "b.session_id = ?", sessionID, statuses)
}

// ListByOrganizationTx returns the bookings of an organisation inside tx.
func (r *BookingRepo) ListByOrganizationTx(ctx context.Context, tx *sql.Tx, orgID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return listBookings(ctx, tx, "b.organization_id = ?", orgID, statuses)
}

// ListByUser returns all bookings for the given user.  When no bookings
// exist, an empty slice is returned.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return listBookings(ctx, r.db, "b.user_id = ?", userID, nil)
}

func listBookings(ctx context.Context, q querier, cond string, key uint64, statuses []model.Status) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE ` + cond
	args := []any{key}
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, s := range statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(s))
		}
		query += ` AND b.status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY b.id ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
