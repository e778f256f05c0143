package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/edjs/theatre-booking/internal/model"
)

// TicketRepo provides data access to the tickets table.  Tickets are
// issued in bulk when a booking is confirmed and voided in bulk when it is
// rejected, cancelled or sent back for review.  The qr_code column carries
// a unique index; a collision surfaces as ErrConflict.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreateBulkTx inserts tickets within the provided transaction.  Each
// ticket must specify BookingID, QRCode and HolderName.  IDs are assigned
// back onto the slice in insertion order.  Passing an empty slice has no
// effect and returns nil.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tickets (booking_id, qr_code, seat_number, status, holder_name) VALUES `)
	args := make([]any, 0, len(tickets)*5)
	for i, t := range tickets {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		status := t.Status
		if status == "" {
			status = model.TicketActive
		}
		args = append(args, t.BookingID, t.QRCode, t.SeatNumber, string(status), t.HolderName)
	}
	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrConflict
		}
		return err
	}
	// MySQL reports the ID of the first row of a multi-row insert and
	// assigns consecutive IDs to the rest.
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i := range tickets {
		tickets[i].ID = uint64(first) + uint64(i)
		if tickets[i].Status == "" {
			tickets[i].Status = model.TicketActive
		}
	}
	return nil
}

// CancelByBookingTx voids every active ticket of a booking and returns
// how many were voided.
func (r *TicketRepo) CancelByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE booking_id = ? AND status = ?`,
		string(model.TicketCancelled), bookingID, string(model.TicketActive),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountActiveTx counts the active tickets of a booking inside tx.
func (r *TicketRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE booking_id = ? AND status = ?`,
		bookingID, string(model.TicketActive),
	).Scan(&n)
	return n, err
}

// ListByBooking returns every ticket of a booking ordered by ID.  When the
// booking has no tickets, an empty slice is returned.
func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, booking_id, qr_code, seat_number, status, holder_name, created_at
               FROM tickets WHERE booking_id = ? ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		var (
			t      model.Ticket
			seat   sql.NullString
			status string
		)
		if err := rows.Scan(&t.ID, &t.BookingID, &t.QRCode, &seat, &status, &t.HolderName, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = model.TicketStatus(status)
		if seat.Valid {
			s := seat.String
			t.SeatNumber = &s
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
