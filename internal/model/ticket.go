package model

import "time"

// TicketStatus is the state of an admission credential.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is one admission credential per seat of a booking.  Tickets are a
// downstream artifact: capacity accounting only ever looks at bookings.
type Ticket struct {
	ID         uint64       // tickets.id
	BookingID  uint64       // tickets.booking_id
	QRCode     string       // tickets.qr_code (unique)
	SeatNumber *string      // tickets.seat_number (nullable, cosmetic)
	Status     TicketStatus // tickets.status
	HolderName string       // tickets.holder_name
	CreatedAt  time.Time    // tickets.created_at
}
