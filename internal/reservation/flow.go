package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// Notification is the flat record handed to the notification collaborator
// once a booking is submitted.
type Notification struct {
	BookingID      uint64            `json:"booking_id"`
	Type           model.BookingType `json:"booking_type"`
	Status         model.Status      `json:"status"`
	RecipientName  string            `json:"recipient_name"`
	RecipientEmail string            `json:"recipient_email"`
	SpectacleTitle string            `json:"spectacle_title"`
	StartsAt       time.Time         `json:"starts_at"`
	Venue          string            `json:"venue"`
	City           string            `json:"city"`
	Seats          int               `json:"seats"`
	AmountCents    uint32            `json:"total_amount_cents"`
	Reference      string            `json:"payment_reference"`
	QuoteURL       string            `json:"quote_url,omitempty"`
}

// Notifier is told about submitted bookings.  Its failures are logged and
// never undo the booking.
type Notifier interface {
	BookingSubmitted(ctx context.Context, n Notification) error
}

// Quote is the input of quote generation for a private-school booking.
type Quote struct {
	Booking        model.Booking
	Session        model.Session
	UnitPriceCents uint32
}

// QuoteGenerator renders a quote and returns where it can be fetched.
type QuoteGenerator interface {
	GenerateQuote(ctx context.Context, q Quote) (string, error)
}

// Profile is what the identity collaborator knows about the requester.
type Profile struct {
	UserID         uint64
	Type           model.BookingType
	OrganizationID *uint64
}

// Details is the input of the details step.
type Details struct {
	Tickets      int
	Students     int
	Accompanists int
	Contact      model.Contact
}

// SessionOption is one row of the session step listing.  Sessions without
// seats are listed with Bookable false rather than hidden.
type SessionOption struct {
	Session      model.Session
	Availability ledger.Availability
	Bookable     bool
}

// Receipt is the result of a successful submission.
type Receipt struct {
	Booking model.Booking
	Session model.Session
	Tickets []model.Ticket
}

// Flow orchestrates the wizard.  Each step validates its input against
// the ledger before advancing the draft; Submit hands the result to the
// lifecycle service, whose locked check is the one that counts.
type Flow struct {
	store     repository.Store
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Service
	drafts    DraftStore
	notifier  Notifier
	quotes    QuoteGenerator
	log       zerolog.Logger
	now       func() time.Time
}

// Deps are the collaborators of a Flow.  Notifier and Quotes are optional.
type Deps struct {
	Store     repository.Store
	Lifecycle *lifecycle.Service
	Drafts    DraftStore
	Notifier  Notifier
	Quotes    QuoteGenerator
	Log       zerolog.Logger
}

// NewFlow builds a Flow.
func NewFlow(d Deps) *Flow {
	return &Flow{
		store:     d.Store,
		ledger:    ledger.New(d.Store),
		lifecycle: d.Lifecycle,
		drafts:    d.Drafts,
		notifier:  d.Notifier,
		quotes:    d.Quotes,
		log:       d.Log.With().Str("component", "reservation").Logger(),
		now:       time.Now,
	}
}

// Start opens a draft for p.  When explicit is non-empty the profile step
// is settled immediately.
func (f *Flow) Start(ctx context.Context, p Profile, explicit string) (Draft, error) {
	now := f.now().UTC()
	d := Draft{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Step:           StepProfile,
		ProfileType:    p.Type,
		OrganizationID: p.OrganizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if explicit != "" || p.Type != "" {
		if err := f.applyProfile(ctx, &d, explicit); err != nil {
			return Draft{}, err
		}
	}
	return d, f.save(ctx, &d)
}

// Get returns the draft id of userID.
func (f *Flow) Get(ctx context.Context, id string, userID uint64) (Draft, error) {
	d, err := f.drafts.Get(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.UserID != userID {
		return Draft{}, ErrDraftNotFound
	}
	return d, nil
}

// ChooseProfile settles the booking type of the draft.  It resets every
// later step.
func (f *Flow) ChooseProfile(ctx context.Context, id string, userID uint64, explicit string) (Draft, error) {
	d, err := f.Get(ctx, id, userID)
	if err != nil {
		return Draft{}, err
	}
	if err := f.applyProfile(ctx, &d, explicit); err != nil {
		return Draft{}, err
	}
	return d, f.save(ctx, &d)
}

// applyProfile settles the booking type.  Any type other than individual
// must be the profile's own type, and when the profile names an
// organisation its kind must match too: the explicit choice picks a pool,
// it does not grant one.
func (f *Flow) applyProfile(ctx context.Context, d *Draft, explicit string) error {
	t, err := ResolveType(explicit, d.ProfileType)
	if err != nil {
		return err
	}
	if t != model.BookingIndividual {
		if t != d.ProfileType {
			return &model.PolicyError{Rule: fmt.Sprintf("profile %q cannot book as %s", d.ProfileType, t)}
		}
		if needsOrganization(t) && d.OrganizationID == nil {
			return model.Invalid("profile", fmt.Sprintf("%s bookings need an organization on the profile", t))
		}
		if d.OrganizationID != nil {
			if err := f.checkOrganization(ctx, *d.OrganizationID, t); err != nil {
				return err
			}
		}
	}
	*d = Draft{
		ID: d.ID, UserID: d.UserID, ProfileType: d.ProfileType, OrganizationID: d.OrganizationID,
		CreatedAt: d.CreatedAt, Type: t, Step: StepSession,
	}
	return nil
}

func (f *Flow) checkOrganization(ctx context.Context, id uint64, t model.BookingType) error {
	org, err := f.store.GetOrganization(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Invalid("profile", "unknown organization")
		}
		return fmt.Errorf("load organization %d: %w", id, err)
	}
	if org.Kind != t {
		return &model.PolicyError{Rule: fmt.Sprintf("%s organizations cannot book as %s", org.Kind, t)}
	}
	if org.VerificationStatus == model.VerificationRejected {
		return &model.PolicyError{Rule: "organization was rejected"}
	}
	return nil
}

// Sessions lists the sessions a booking of type t may target, each with
// the availability of t's pool.
func (f *Flow) Sessions(ctx context.Context, t model.BookingType) ([]SessionOption, error) {
	all, err := f.store.ListSessions(ctx, repository.SessionFilter{Status: model.SessionPublished, From: f.now()})
	if err != nil {
		return nil, err
	}
	out := make([]SessionOption, 0, len(all))
	for _, s := range all {
		if !s.Serves(t) {
			continue
		}
		a, err := f.ledger.Availability(ctx, s.ID, t.Category())
		if err != nil {
			return nil, err
		}
		out = append(out, SessionOption{Session: s, Availability: a, Bookable: a.Available > 0})
	}
	return out, nil
}

// ChooseSession picks the session of the draft.  The session must be open,
// programmed for the draft's audience and have seats left in its pool.
func (f *Flow) ChooseSession(ctx context.Context, id string, userID, sessionID uint64) (Draft, error) {
	d, err := f.Get(ctx, id, userID)
	if err != nil {
		return Draft{}, err
	}
	if d.Step < StepSession {
		return Draft{}, stepError(StepProfile)
	}
	if sessionID == 0 {
		return Draft{}, model.Invalid("session_id", "a session must be chosen")
	}
	s, err := f.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Draft{}, model.Invalid("session_id", "unknown session")
		}
		return Draft{}, err
	}
	if !s.Bookable(f.now()) {
		return Draft{}, model.Invalid("session_id", "session is not open for booking")
	}
	if !s.Serves(d.Type) {
		return Draft{}, model.Invalid("session_id", fmt.Sprintf("session does not accept %s bookings", d.Type))
	}
	a, err := f.ledger.Availability(ctx, s.ID, d.Category())
	if err != nil {
		return Draft{}, err
	}
	if a.Available <= 0 {
		return Draft{}, model.Invalid("session_id", "no seats left in this session")
	}
	d.SessionID = s.ID
	d.Step = StepDetails
	return d, f.save(ctx, &d)
}

// SetDetails records the contact and seat counts.  Seats are checked
// against the pool; a shortfall comes back as *model.CapacityError whose
// Shortfall is the number of seats missing.
func (f *Flow) SetDetails(ctx context.Context, id string, userID uint64, in Details) (Draft, error) {
	d, err := f.Get(ctx, id, userID)
	if err != nil {
		return Draft{}, err
	}
	if d.Step < StepDetails {
		return Draft{}, stepError(StepSession)
	}
	if err := validateContact(in.Contact); err != nil {
		return Draft{}, err
	}
	d.Tickets, d.Students, d.Accompanists = 0, 0, 0
	if d.Type.Professional() {
		if in.Students <= 0 {
			return Draft{}, model.Invalid("students_count", "at least one student is required")
		}
		if in.Accompanists < 0 {
			return Draft{}, model.Invalid("accompanists_count", "must not be negative")
		}
		if limit := MaxAccompanists(in.Students); in.Accompanists > limit {
			return Draft{}, model.Invalid("accompanists_count", fmt.Sprintf("at most %d accompanists for %d students", limit, in.Students))
		}
		d.Students, d.Accompanists = in.Students, in.Accompanists
	} else {
		if in.Tickets <= 0 {
			return Draft{}, model.Invalid("number_of_tickets", "at least one ticket is required")
		}
		d.Tickets = in.Tickets
	}
	seats := model.SeatCount(d.Seats())
	if free(d.Type) && d.OrganizationID != nil {
		org, err := f.store.GetOrganization(ctx, *d.OrganizationID)
		if err != nil {
			return Draft{}, fmt.Errorf("load organization: %w", err)
		}
		if org.MaxFreeTickets > 0 && seats > org.MaxFreeTickets {
			return Draft{}, model.Invalid("seats", fmt.Sprintf("your organization may book at most %d free seats", org.MaxFreeTickets))
		}
	}
	s, err := f.store.GetSession(ctx, d.SessionID)
	if err != nil {
		return Draft{}, err
	}
	bookings, err := f.store.SessionBookings(ctx, s.ID, model.ConsumingStatuses...)
	if err != nil {
		return Draft{}, err
	}
	if err := ledger.Admit(s, d.Category(), bookings, seats); err != nil {
		return Draft{}, err
	}
	d.Contact = normaliseContact(in.Contact)
	d.AmountCents = Price(s, d.Type, d.Seats())
	d.PaymentMethod = ""
	d.Step = StepPayment
	return d, f.save(ctx, &d)
}

// ChoosePayment records how the booking will be paid.  Free is reserved
// to bookings with nothing to pay, and bookings with nothing to pay can
// only be free.
func (f *Flow) ChoosePayment(ctx context.Context, id string, userID uint64, method string) (Draft, error) {
	d, err := f.Get(ctx, id, userID)
	if err != nil {
		return Draft{}, err
	}
	if d.Step < StepPayment {
		return Draft{}, stepError(StepDetails)
	}
	m, ok := model.ParsePaymentMethod(method)
	if !ok {
		return Draft{}, model.Invalid("payment_method", "must be card, transfer, on_site or free")
	}
	if d.AmountCents == 0 && m != model.PaymentFree {
		return Draft{}, model.Invalid("payment_method", "nothing to pay; use free")
	}
	if d.AmountCents > 0 && m == model.PaymentFree {
		return Draft{}, model.Invalid("payment_method", "this booking is not free")
	}
	d.PaymentMethod = m
	d.Step = StepReady
	return d, f.save(ctx, &d)
}

// Submit turns a completed draft into a booking.  The draft is claimed
// before anything is written, so a repeated submission of the same draft
// fails with ErrDraftSubmitted instead of booking twice; if the booking is
// refused the draft is put back for another attempt.  The booking, its
// seats and its tickets are written in one transaction; notification and
// quote generation run after it commits and only log their failures.
func (f *Flow) Submit(ctx context.Context, id string, userID uint64) (Receipt, error) {
	d, err := f.Get(ctx, id, userID)
	if err != nil {
		return Receipt{}, err
	}
	if d.Step < StepReady {
		return Receipt{}, stepError(d.Step)
	}
	d, err = f.drafts.Take(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDraftNotFound) {
			return Receipt{}, ErrDraftSubmitted
		}
		return Receipt{}, err
	}
	if d.UserID != userID || d.Step < StepReady {
		// Replaced between the read and the claim; hand it back untouched.
		_ = f.drafts.Save(ctx, d)
		if d.UserID != userID {
			return Receipt{}, ErrDraftNotFound
		}
		return Receipt{}, stepError(d.Step)
	}
	created, err := f.create(ctx, d)
	if err != nil {
		if rerr := f.drafts.Save(ctx, d); rerr != nil {
			f.log.Warn().Err(rerr).Str("draft_id", d.ID).Msg("restore refused draft")
		}
		return Receipt{}, err
	}

	b := created.Booking
	if b.Type.DefersTickets() && f.quotes != nil {
		unit := created.Session.StudentPriceCents
		url, err := f.quotes.GenerateQuote(ctx, Quote{Booking: b, Session: created.Session, UnitPriceCents: unit})
		if err != nil {
			f.log.Error().Err(err).Uint64("booking_id", b.ID).Msg("quote generation failed")
		} else if err := f.store.SetQuoteURL(ctx, b.ID, url); err != nil {
			f.log.Error().Err(err).Uint64("booking_id", b.ID).Msg("store quote url")
		} else {
			b.QuoteURL = &url
		}
	}
	if f.notifier != nil {
		if err := f.notifier.BookingSubmitted(ctx, NotificationFor(b, created.Session)); err != nil {
			f.log.Error().Err(err).Uint64("booking_id", b.ID).Msg("booking notification failed")
		}
	}
	return Receipt{Booking: b, Session: created.Session, Tickets: created.Tickets}, nil
}

func (f *Flow) create(ctx context.Context, d Draft) (lifecycle.Created, error) {
	seats := model.SeatCount(d.Seats())
	fits, err := f.ledger.CanAdmit(ctx, d.SessionID, d.Category(), seats)
	if err != nil {
		return lifecycle.Created{}, err
	}
	sub := lifecycle.Submission{
		Booking: model.Booking{
			SessionID:        d.SessionID,
			UserID:           d.UserID,
			OrganizationID:   d.OrganizationID,
			Type:             d.Type,
			Seats:            d.Seats(),
			PaymentMethod:    d.PaymentMethod,
			TotalAmountCents: d.AmountCents,
			Contact:          d.Contact,
		},
		// Card payments of individuals are captured on the spot.
		Settled: d.Type == model.BookingIndividual && d.PaymentMethod == model.PaymentCard,
	}
	created, err := f.lifecycle.Create(ctx, sub)
	if err != nil {
		var ce *model.CapacityError
		if fits && errors.As(err, &ce) {
			ce.Raced = true
			f.log.Info().Str("draft_id", d.ID).Uint64("session_id", d.SessionID).Msg("lost admission race")
		}
		return lifecycle.Created{}, err
	}
	return created, nil
}

// NotificationFor flattens a booking and its session.
func NotificationFor(b model.Booking, s model.Session) Notification {
	n := Notification{
		BookingID:      b.ID,
		Type:           b.Type,
		Status:         b.Status,
		RecipientName:  b.Contact.Name,
		RecipientEmail: b.Contact.Email,
		SpectacleTitle: s.SpectacleTitle,
		StartsAt:       s.StartsAt,
		Venue:          s.Venue,
		City:           s.City,
		Seats:          b.SeatCount(),
		AmountCents:    b.TotalAmountCents,
		Reference:      b.PaymentRef,
	}
	if b.QuoteURL != nil {
		n.QuoteURL = *b.QuoteURL
	}
	return n
}

func (f *Flow) save(ctx context.Context, d *Draft) error {
	d.UpdatedAt = f.now().UTC()
	if err := f.drafts.Save(ctx, *d); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func stepError(want Step) error {
	return model.Invalid("step", "complete the "+want.String()+" step first")
}

var validate = validator.New()

func validateContact(c model.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return model.Invalid("contact.name", "required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return model.Invalid("contact.email", "required")
	}
	if err := validate.Var(strings.TrimSpace(c.Email), "email"); err != nil {
		return model.Invalid("contact.email", "not a valid address")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return model.Invalid("contact.phone", "required")
	}
	return nil
}

func normaliseContact(c model.Contact) model.Contact {
	return model.Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}
