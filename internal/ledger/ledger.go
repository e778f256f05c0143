// Package ledger implements capacity accounting for sessions.  Every
// function here is a pure read over a session and the bookings stored
// against it; callers that need the answer to stay true until they write
// must evaluate it inside the store transaction that locks the session.
package ledger

import (
	"context"
	"fmt"

	"github.com/edjs/theatre-booking/internal/model"
)

// Availability is the state of one category pool of a session.
type Availability struct {
	Category  model.Category `json:"category"`
	Total     int            `json:"total"`
	Consumed  int            `json:"-"`
	Available int            `json:"available"`
}

// Consumed sums the seats of bookings on session s, in category c, whose
// status counts against capacity.
func Consumed(s model.Session, c model.Category, bookings []model.Booking) int {
	n := 0
	for _, b := range bookings {
		if b.SessionID != s.ID || b.Category() != c || !b.Status.ConsumesCapacity() {
			continue
		}
		n += b.SeatCount()
	}
	return n
}

// AvailableSeats reports the ceiling of category c on s and how many seats
// remain.  Available never goes below zero, even when a ceiling was
// lowered under what is already booked.
func AvailableSeats(s model.Session, c model.Category, bookings []model.Booking) Availability {
	total := c.Ceiling(s)
	used := Consumed(s, c, bookings)
	avail := total - used
	if avail < 0 {
		avail = 0
	}
	return Availability{Category: c, Total: total, Consumed: used, Available: avail}
}

// CanAdmit reports whether requested more seats fit in category c right
// now.  A shortfall is not an error; a non-positive request is.
func CanAdmit(s model.Session, c model.Category, bookings []model.Booking, requested int) (bool, error) {
	if requested <= 0 {
		return false, model.Invalid("seats", "requested seats must be positive")
	}
	return requested <= AvailableSeats(s, c, bookings).Available, nil
}

// Admit is CanAdmit for callers that want the shortfall as an error.  It
// returns a *model.CapacityError when the seats do not fit.
func Admit(s model.Session, c model.Category, bookings []model.Booking, requested int) error {
	ok, err := CanAdmit(s, c, bookings, requested)
	if err != nil {
		return err
	}
	if !ok {
		return &model.CapacityError{
			Category:  c,
			Requested: requested,
			Available: AvailableSeats(s, c, bookings).Available,
		}
	}
	return nil
}

// RemainingAfter reports the availability of c once released seats go
// back to the pool.  The result is capped at the ceiling.
func RemainingAfter(s model.Session, c model.Category, bookings []model.Booking, released int) Availability {
	a := AvailableSeats(s, c, bookings)
	if released <= 0 {
		return a
	}
	a.Consumed -= released
	if a.Consumed < 0 {
		a.Consumed = 0
	}
	a.Available = a.Total - a.Consumed
	if a.Available < 0 {
		a.Available = 0
	}
	return a
}

// Without returns bookings minus the booking with the given id.  It is
// used to re-check a booking that already holds seats against its own
// pool.
func Without(bookings []model.Booking, id uint64) []model.Booking {
	out := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

// Categories lists every pool in display order.
var Categories = []model.Category{model.CategoryIndividual, model.CategoryProfessional, model.CategoryPartner}

// Reader is the read side of the persistence collaborator.
type Reader interface {
	GetSession(ctx context.Context, id uint64) (model.Session, error)
	SessionBookings(ctx context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error)
}

// Ledger answers availability questions for stored sessions.  Its answers
// are advisory (listings, wizard validation); admission itself is decided
// inside a locked transaction by the lifecycle service.
type Ledger struct {
	r Reader
}

// New returns a Ledger reading from r.
func New(r Reader) *Ledger { return &Ledger{r: r} }

// Availability loads session id and reports pool c.
func (l *Ledger) Availability(ctx context.Context, id uint64, c model.Category) (Availability, error) {
	s, bookings, err := l.load(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	return AvailableSeats(s, c, bookings), nil
}

// Overview reports every pool of session id.
func (l *Ledger) Overview(ctx context.Context, id uint64) (model.Session, []Availability, error) {
	s, bookings, err := l.load(ctx, id)
	if err != nil {
		return model.Session{}, nil, err
	}
	out := make([]Availability, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, AvailableSeats(s, c, bookings))
	}
	return s, out, nil
}

// CanAdmit loads session id and checks requested seats against pool c.
func (l *Ledger) CanAdmit(ctx context.Context, id uint64, c model.Category, requested int) (bool, error) {
	s, bookings, err := l.load(ctx, id)
	if err != nil {
		return false, err
	}
	return CanAdmit(s, c, bookings, requested)
}

func (l *Ledger) load(ctx context.Context, id uint64) (model.Session, []model.Booking, error) {
	s, err := l.r.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, nil, err
	}
	bookings, err := l.r.SessionBookings(ctx, id, model.ConsumingStatuses...)
	if err != nil {
		return model.Session{}, nil, fmt.Errorf("load bookings of session %d: %w", id, err)
	}
	return s, bookings, nil
}
