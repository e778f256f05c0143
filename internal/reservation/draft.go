package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// Step is the next wizard step a draft is waiting for.
type Step int

const (
	StepProfile Step = iota + 1
	StepSession
	StepDetails
	StepPayment
	StepReady
)

func (s Step) String() string {
	switch s {
	case StepProfile:
		return "profile"
	case StepSession:
		return "session"
	case StepDetails:
		return "details"
	case StepPayment:
		return "payment"
	case StepReady:
		return "ready"
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Step) UnmarshalText(b []byte) error {
	for st := StepProfile; st <= StepReady; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown wizard step %q", b)
}

// Draft is the state of one wizard run.  It belongs to one user and is
// discarded once submitted.
type Draft struct {
	ID             string              `json:"id"`
	UserID         uint64              `json:"user_id"`
	Step           Step                `json:"step"`
	ProfileType    model.BookingType   `json:"profile_type,omitempty"`
	Type           model.BookingType   `json:"booking_type,omitempty"`
	OrganizationID *uint64             `json:"organization_id,omitempty"`
	SessionID      uint64              `json:"session_id,omitempty"`
	Tickets        int                 `json:"number_of_tickets,omitempty"`
	Students       int                 `json:"students_count,omitempty"`
	Accompanists   int                 `json:"accompanists_count,omitempty"`
	Contact        model.Contact       `json:"contact"`
	PaymentMethod  model.PaymentMethod `json:"payment_method,omitempty"`
	AmountCents    uint32              `json:"total_amount_cents"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Category is the capacity pool of the draft's booking type.
func (d Draft) Category() model.Category { return d.Type.Category() }

// Seats builds the seat variant matching the draft's booking type.
func (d Draft) Seats() model.Seats {
	if d.Type.Professional() {
		return model.ProfessionalSeats{Students: d.Students, Accompanists: d.Accompanists}
	}
	return model.IndividualSeats{Tickets: d.Tickets}
}

// ErrDraftNotFound is returned for unknown, expired or foreign drafts.
var ErrDraftNotFound = fmt.Errorf("draft %w", repository.ErrNotFound)

// ErrDraftSubmitted is returned when a draft is submitted again while, or
// after, an earlier submission of it went through.
var ErrDraftSubmitted = fmt.Errorf("draft already submitted: %w", repository.ErrConflict)

// DraftStore keeps drafts between wizard requests. Take reads and
// removes a draft in one step; of two concurrent Takes on the same id,
// one gets the draft and the other ErrDraftNotFound.
type DraftStore interface {
	Get(ctx context.Context, id string) (Draft, error)
	Save(ctx context.Context, d Draft) error
	Take(ctx context.Context, id string) (Draft, error)
}

// RedisDraftStore keeps drafts as JSON values that expire after TTL of
// inactivity.
type RedisDraftStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDraftStore returns a DraftStore over rdb.
func NewRedisDraftStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisDraftStore {
	if prefix == "" {
		prefix = "draft"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisDraftStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisDraftStore) key(id string) string { return s.prefix + ":" + id }

func (s *RedisDraftStore) Get(ctx context.Context, id string) (Draft, error) {
	return s.decode(id, s.rdb.Get(ctx, s.key(id)))
}

// Take uses GETDEL (Redis 6.2+).
func (s *RedisDraftStore) Take(ctx context.Context, id string) (Draft, error) {
	return s.decode(id, s.rdb.GetDel(ctx, s.key(id)))
}

func (s *RedisDraftStore) decode(id string, cmd *redis.StringCmd) (Draft, error) {
	bs, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Draft{}, ErrDraftNotFound
		}
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(bs, &d); err != nil {
		return Draft{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return d, nil
}

func (s *RedisDraftStore) Save(ctx context.Context, d Draft) error {
	bs, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.rdb.SetEx(ctx, s.key(d.ID), bs, s.ttl).Err()
}

// MemoryDraftStore is the in-process DraftStore used when Redis is not
// reachable and in tests.
type MemoryDraftStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]memDraft
	now    func() time.Time
}

type memDraft struct {
	d       Draft
	expires time.Time
}

// NewMemoryDraftStore returns an empty MemoryDraftStore.
func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryDraftStore{ttl: ttl, drafts: map[string]memDraft{}, now: time.Now}
}

func (s *MemoryDraftStore) Get(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[id]
	if !ok || s.now().After(e.expires) {
		delete(s.drafts, id)
		return Draft{}, ErrDraftNotFound
	}
	return e.d, nil
}

func (s *MemoryDraftStore) Save(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID] = memDraft{d: d, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryDraftStore) Take(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[id]
	delete(s.drafts, id)
	if !ok || s.now().After(e.expires) {
		return Draft{}, ErrDraftNotFound
	}
	return e.d, nil
}
