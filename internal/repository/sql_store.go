package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// SQLStore implements Store on MySQL by composing the table repositories.
// Transactions lock the session row with SELECT ... FOR UPDATE, so two
// admissions on the same session queue behind each other while different
// sessions proceed in parallel.
type SQLStore struct {
	db            *sql.DB
	sessions      *SessionRepo
	bookings      *BookingRepo
	tickets       *TicketRepo
	organizations *OrganizationRepo
}

// NewSQLStore builds a SQLStore over db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:            db,
		sessions:      NewSessionRepo(db),
		bookings:      NewBookingRepo(db),
		tickets:       NewTicketRepo(db),
		organizations: NewOrganizationRepo(db),
	}
}

// InTx begins a transaction, runs fn and commits when fn returns nil.  Any
// error, including a panic unwinding through fn, rolls back.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id uint64) (model.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *SQLStore) ListSessions(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	return s.sessions.List(ctx, f)
}

func (s *SQLStore) SessionBookings(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return s.bookings.ListBySession(ctx, sessionID, statuses...)
}

func (s *SQLStore) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *SQLStore) UserBookings(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.bookings.ListByUser(ctx, userID)
}

func (s *SQLStore) BookingTickets(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	return s.tickets.ListByBooking(ctx, bookingID)
}

func (s *SQLStore) SetQuoteURL(ctx context.Context, bookingID uint64, url string) error {
	return s.bookings.SetQuoteURL(ctx, bookingID, url)
}

func (s *SQLStore) GetOrganization(ctx context.Context, id uint64) (model.Organization, error) {
	return s.organizations.GetByID(ctx, id)
}

func (s *SQLStore) CreateOrganization(ctx context.Context, o *model.Organization) error {
	if err := s.organizations.Create(ctx, o); err != nil {
		return err
	}
	o.CreatedAt = time.Now().UTC()
	return nil
}

// sqlTx binds the repositories to one *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
	s  *SQLStore
}

func (t *sqlTx) LockSession(ctx context.Context, id uint64) (model.Session, error) {
	return t.s.sessions.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) SessionBookings(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return t.s.bookings.ListBySessionTx(ctx, t.tx, sessionID, statuses...)
}

func (t *sqlTx) UpdateSessionCapacity(ctx context.Context, s model.Session) error {
	return t.s.sessions.UpdateCapacityTx(ctx, t.tx, s)
}

func (t *sqlTx) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.s.bookings.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.CreateTx(ctx, t.tx, b)
}

func (t *sqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.UpdateTx(ctx, t.tx, b)
}

func (t *sqlTx) OrganizationBookings(ctx context.Context, orgID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return t.s.bookings.ListByOrganizationTx(ctx, t.tx, orgID, statuses...)
}

func (t *sqlTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	return t.s.tickets.CreateBulkTx(ctx, t.tx, tickets)
}

func (t *sqlTx) CancelTickets(ctx context.Context, bookingID uint64) (int, error) {
	return t.s.tickets.CancelByBookingTx(ctx, t.tx, bookingID)
}

func (t *sqlTx) CountActiveTickets(ctx context.Context, bookingID uint64) (int, error) {
	return t.s.tickets.CountActiveTx(ctx, t.tx, bookingID)
}

// GetOrganization reads without locking.  Booking rows are always locked
// before organisation state is consulted, never the other way round.
func (t *sqlTx) GetOrganization(ctx context.Context, id uint64) (model.Organization, error) {
	return getOrganization(ctx, t.tx, id)
}

func (t *sqlTx) UpdateOrganization(ctx context.Context, o *model.Organization) error {
	return t.s.organizations.UpdateTx(ctx, t.tx, o)
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*sqlTx)(nil)
	_ Tx    = (*memTx)(nil)
)
