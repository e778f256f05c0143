package repository

import (
	"context"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// SessionFilter narrows session listings.  Zero values mean "any".
type SessionFilter struct {
	Type        model.SessionType
	Status      model.SessionStatus
	From        time.Time
	City        string
	SpectacleID uint64
}

// Tx is the set of operations available inside a store transaction.  A
// transaction that starts with LockSession holds an exclusive lock on the
// session row until it ends, which serialises every admission decision
// taken on that session.
type Tx interface {
	LockSession(ctx context.Context, id uint64) (model.Session, error)
	SessionBookings(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error)
	UpdateSessionCapacity(ctx context.Context, s model.Session) error

	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error
	OrganizationBookings(ctx context.Context, orgID uint64, statuses ...model.Status) ([]model.Booking, error)

	InsertTickets(ctx context.Context, tickets []model.Ticket) error
	CancelTickets(ctx context.Context, bookingID uint64) (int, error)
	CountActiveTickets(ctx context.Context, bookingID uint64) (int, error)

	GetOrganization(ctx context.Context, id uint64) (model.Organization, error)
	UpdateOrganization(ctx context.Context, o *model.Organization) error
}

// Store is the persistence collaborator of the booking core.  Reads
// outside InTx see committed state only.
type Store interface {
	// InTx runs fn in a transaction.  fn's writes become visible only if it
	// returns nil; any error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetSession(ctx context.Context, id uint64) (model.Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]model.Session, error)
	SessionBookings(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error)

	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	UserBookings(ctx context.Context, userID uint64) ([]model.Booking, error)
	BookingTickets(ctx context.Context, bookingID uint64) ([]model.Ticket, error)
	// SetQuoteURL attaches a generated quote document to a booking.  It
	// runs after the creating transaction has committed.
	SetQuoteURL(ctx context.Context, bookingID uint64, url string) error

	GetOrganization(ctx context.Context, id uint64) (model.Organization, error)
	// CreateOrganization registers o as pending verification and sets its
	// ID.
	CreateOrganization(ctx context.Context, o *model.Organization) error
}
