package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// MemoryStore is an in-process Store.  Transactions are serialised by a
// single mutex and work on a private copy of the data that replaces the
// committed state only when the transaction function succeeds, so a
// failed transaction leaves nothing behind.  It backs the test suites and
// the STORE_MODE=memory development mode.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	sessions      map[uint64]model.Session
	bookings      map[uint64]model.Booking
	tickets       map[uint64]model.Ticket
	organizations map[uint64]model.Organization
	nextBooking   uint64
	nextTicket    uint64
	nextOrg       uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		sessions:      map[uint64]model.Session{},
		bookings:      map[uint64]model.Booking{},
		tickets:       map[uint64]model.Ticket{},
		organizations: map[uint64]model.Organization{},
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		sessions:      make(map[uint64]model.Session, len(st.sessions)),
		bookings:      make(map[uint64]model.Booking, len(st.bookings)),
		tickets:       make(map[uint64]model.Ticket, len(st.tickets)),
		organizations: make(map[uint64]model.Organization, len(st.organizations)),
		nextBooking:   st.nextBooking,
		nextTicket:    st.nextTicket,
		nextOrg:       st.nextOrg,
	}
	for k, v := range st.sessions {
		c.sessions[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	for k, v := range st.tickets {
		c.tickets[k] = v
	}
	for k, v := range st.organizations {
		c.organizations[k] = v
	}
	return c
}

// PutSession inserts or replaces a session.  It is meant for seeding.
func (m *MemoryStore) PutSession(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sessions[s.ID] = s
}

// PutOrganization inserts or replaces an organisation.
func (m *MemoryStore) PutOrganization(o model.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID > m.state.nextOrg {
		m.state.nextOrg = o.ID
	}
	m.state.organizations[o.ID] = o
}

// CreateOrganization implements Store.
func (m *MemoryStore) CreateOrganization(_ context.Context, o *model.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextOrg++
	o.ID = m.state.nextOrg
	o.VerificationStatus = model.VerificationPending
	o.VerifiedAt = nil
	o.CreatedAt = time.Now().UTC()
	m.state.organizations[o.ID] = *o
	return nil
}

// PutBooking inserts or replaces a booking, assigning an ID when zero.
func (m *MemoryStore) PutBooking(b model.Booking) model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		m.state.nextBooking++
		b.ID = m.state.nextBooking
	} else if b.ID > m.state.nextBooking {
		m.state.nextBooking = b.ID
	}
	m.state.bookings[b.ID] = b
	return b
}

// InTx implements Store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := m.state.clone()
	if err := fn(ctx, &memTx{st: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id uint64) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.session(id)
}

func (m *MemoryStore) ListSessions(_ context.Context, f SessionFilter) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Session, 0)
	for _, s := range m.state.sessions {
		if f.Type != "" && s.Type != f.Type {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && s.StartsAt.Before(f.From) {
			continue
		}
		if f.City != "" && !strings.EqualFold(s.City, f.City) {
			continue
		}
		if f.SpectacleID != 0 && s.SpectacleID != f.SpectacleID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (m *MemoryStore) SessionBookings(_ context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.sessionBookings(sessionID, statuses), nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.booking(id)
}

func (m *MemoryStore) UserBookings(_ context.Context, userID uint64) ([]model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range m.state.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (m *MemoryStore) BookingTickets(_ context.Context, bookingID uint64) ([]model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Ticket, 0)
	for _, t := range m.state.tickets {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetQuoteURL(_ context.Context, bookingID uint64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	b.QuoteURL = &url
	b.UpdatedAt = time.Now().UTC()
	m.state.bookings[bookingID] = b
	return nil
}

func (m *MemoryStore) GetOrganization(_ context.Context, id uint64) (model.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.organization(id)
}

func (st *memState) session(id uint64) (model.Session, error) {
	s, ok := st.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	return s, nil
}

func (st *memState) booking(id uint64) (model.Booking, error) {
	b, ok := st.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func (st *memState) organization(id uint64) (model.Organization, error) {
	o, ok := st.organizations[id]
	if !ok {
		return model.Organization{}, ErrNotFound
	}
	return o, nil
}

func (st *memState) sessionBookings(sessionID uint64, statuses []model.Status) []model.Booking {
	out := make([]model.Booking, 0)
	for _, b := range st.bookings {
		if b.SessionID == sessionID && statusIn(b.Status, statuses) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func statusIn(s model.Status, set []model.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].ID < bs[j].ID })
}

// memTx operates on a staged copy owned by MemoryStore.InTx.
type memTx struct {
	st *memState
}

func (t *memTx) LockSession(_ context.Context, id uint64) (model.Session, error) {
	return t.st.session(id)
}

func (t *memTx) SessionBookings(_ context.Context, sessionID uint64, statuses ...model.Status) ([]model.Booking, error) {
	return t.st.sessionBookings(sessionID, statuses), nil
}

func (t *memTx) UpdateSessionCapacity(_ context.Context, s model.Session) error {
	cur, err := t.st.session(s.ID)
	if err != nil {
		return err
	}
	cur.TotalCapacity = s.TotalCapacity
	cur.B2CCapacity = s.B2CCapacity
	cur.PartnerQuota = s.PartnerQuota
	cur.UpdatedAt = time.Now().UTC()
	t.st.sessions[s.ID] = cur
	return nil
}

func (t *memTx) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	return t.st.booking(id)
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.sessions[b.SessionID]; !ok {
		return ErrNotFound
	}
	t.st.nextBooking++
	now := time.Now().UTC()
	b.ID = t.st.nextBooking
	b.CreatedAt = now
	b.UpdatedAt = now
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *memTx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *memTx) OrganizationBookings(_ context.Context, orgID uint64, statuses ...model.Status) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	for _, b := range t.st.bookings {
		if b.OrganizationID != nil && *b.OrganizationID == orgID && statusIn(b.Status, statuses) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (t *memTx) InsertTickets(_ context.Context, tickets []model.Ticket) error {
	seen := make(map[string]struct{}, len(t.st.tickets))
	for _, tk := range t.st.tickets {
		seen[tk.QRCode] = struct{}{}
	}
	for i := range tickets {
		if _, dup := seen[tickets[i].QRCode]; dup {
			return ErrConflict
		}
		seen[tickets[i].QRCode] = struct{}{}
		t.st.nextTicket++
		tickets[i].ID = t.st.nextTicket
		tickets[i].CreatedAt = time.Now().UTC()
		t.st.tickets[tickets[i].ID] = tickets[i]
	}
	return nil
}

func (t *memTx) CancelTickets(_ context.Context, bookingID uint64) (int, error) {
	n := 0
	for id, tk := range t.st.tickets {
		if tk.BookingID == bookingID && tk.Status == model.TicketActive {
			tk.Status = model.TicketCancelled
			t.st.tickets[id] = tk
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountActiveTickets(_ context.Context, bookingID uint64) (int, error) {
	n := 0
	for _, tk := range t.st.tickets {
		if tk.BookingID == bookingID && tk.Status == model.TicketActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetOrganization(_ context.Context, id uint64) (model.Organization, error) {
	return t.st.organization(id)
}

func (t *memTx) UpdateOrganization(_ context.Context, o *model.Organization) error {
	if _, ok := t.st.organizations[o.ID]; !ok {
		return ErrNotFound
	}
	t.st.organizations[o.ID] = *o
	return nil
}
