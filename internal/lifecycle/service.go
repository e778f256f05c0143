package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// Change describes a committed status transition.
type Change struct {
	Booking model.Booking
	Session model.Session
	From    model.Status
	Action  Action
	ActorID uint64
}

// Listener is told about transitions after they commit.  Implementations
// must not block for long and own their failures; a transition is never
// undone because a listener failed.
type Listener interface {
	StatusChanged(ctx context.Context, ch Change)
}

// Config tunes the policy gates of the Service.
type Config struct {
	// RequireVerifiedOrg refuses approve and confirm on bookings whose
	// organisation is not verified.
	RequireVerifiedOrg bool
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Listener receives committed transitions; optional.
	Listener Listener
}

// Service is the single writer of booking state.  Every method runs in one
// store transaction; the ones that make seats count take the session lock
// before summing what is already booked.
type Service struct {
	store repository.Store
	log   zerolog.Logger
	cfg   Config
}

// NewService returns a Service writing through store.
func NewService(store repository.Store, log zerolog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: store, log: log.With().Str("component", "lifecycle").Logger(), cfg: cfg}
}

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// Submission is a booking ready to be admitted.  Booking carries the
// session, requester, type, seats, contact, payment method and amount;
// status and timestamps are assigned by Create.
type Submission struct {
	Booking model.Booking
	// Settled marks a payment captured at submission.  The booking is
	// confirmed in the same transaction that admits it.
	Settled bool
}

// Created is the outcome of a successful Create.
type Created struct {
	Booking model.Booking
	Session model.Session
	Tickets []model.Ticket
}

// Create admits a new booking.  The capacity check and the insert happen
// under the session lock, so two submissions racing for the last seats
// cannot both succeed.  A shortfall is returned as *model.CapacityError
// and leaves nothing behind.
func (s *Service) Create(ctx context.Context, sub Submission) (Created, error) {
	b := sub.Booking
	if b.SeatCount() <= 0 {
		return Created{}, model.Invalid("seats", "requested seats must be positive")
	}
	var out Created
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sess, err := tx.LockSession(ctx, b.SessionID)
		if err != nil {
			return err
		}
		if !sess.Bookable(s.now()) {
			return model.Invalid("session_id", "session is not open for booking")
		}
		if !sess.Serves(b.Type) {
			return model.Invalid("session_id", fmt.Sprintf("session does not accept %s bookings", b.Type))
		}
		if b.OrganizationID != nil {
			org, err := tx.GetOrganization(ctx, *b.OrganizationID)
			if err != nil {
				return fmt.Errorf("load organization %d: %w", *b.OrganizationID, err)
			}
			if org.VerificationStatus == model.VerificationRejected {
				return &model.PolicyError{Rule: "organization verification was rejected"}
			}
		}
		consuming, err := tx.SessionBookings(ctx, sess.ID, model.ConsumingStatuses...)
		if err != nil {
			return err
		}
		if err := ledger.Admit(sess, b.Category(), consuming, b.SeatCount()); err != nil {
			return err
		}

		now := s.now()
		b.Status = b.Type.InitialStatus()
		b.PaymentStatus = model.PaymentPending
		b.ConfirmedAt, b.ConfirmedBy = nil, nil
		if sub.Settled {
			b.Status = model.StatusConfirmed
			b.PaymentStatus = model.PaymentCompleted
			b.ConfirmedAt = &now
		}
		if b.PaymentRef == "" {
			b.PaymentRef = paymentReference(now)
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		var tickets []model.Ticket
		if !b.Type.DefersTickets() {
			tickets = issueTickets(b, b.SeatCount())
			if err := tx.InsertTickets(ctx, tickets); err != nil {
				return fmt.Errorf("issue tickets: %w", err)
			}
		}
		out = Created{Booking: b, Session: sess, Tickets: tickets}
		return nil
	})
	if err != nil {
		return Created{}, err
	}
	s.log.Info().
		Uint64("booking_id", out.Booking.ID).
		Uint64("session_id", out.Session.ID).
		Str("type", string(out.Booking.Type)).
		Int("seats", out.Booking.SeatCount()).
		Str("status", string(out.Booking.Status)).
		Msg("booking created")
	return out, nil
}

// Confirm moves a pending booking to confirmed after re-checking capacity.
func (s *Service) Confirm(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionConfirm, actorID)
}

// Approve moves an awaiting_verification booking to confirmed.  Capacity
// is re-checked without the booking's own seats and, when configured, the
// organisation must be verified.
func (s *Service) Approve(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionApprove, actorID)
}

// Reject ends a pending or awaiting_verification booking.
func (s *Service) Reject(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionReject, actorID)
}

// Unconfirm sends a confirmed booking back to pending, releasing its seats.
func (s *Service) Unconfirm(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionUnconfirm, actorID)
}

// Cancel ends a booking on behalf of an admin.
func (s *Service) Cancel(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionCancel, actorID)
}

// Complete marks a confirmed booking as attended once its session started.
func (s *Service) Complete(ctx context.Context, id, actorID uint64) (model.Booking, error) {
	return s.Apply(ctx, id, ActionComplete, actorID)
}

// CancelOwn cancels a booking on behalf of its owner.  Only the booking's
// requester may do so, and only before the session starts.
func (s *Service) CancelOwn(ctx context.Context, id, userID uint64) (model.Booking, error) {
	return s.apply(ctx, id, ActionCancel, userID, func(b model.Booking, sess model.Session) error {
		if b.UserID != userID {
			return repository.ErrForbidden
		}
		if !sess.StartsAt.After(s.now()) {
			return &model.PolicyError{Rule: "session has already started"}
		}
		return nil
	})
}

// Apply runs action a on booking id.
func (s *Service) Apply(ctx context.Context, id uint64, a Action, actorID uint64) (model.Booking, error) {
	return s.apply(ctx, id, a, actorID, nil)
}

func (s *Service) apply(ctx context.Context, id uint64, a Action, actorID uint64, guard func(model.Booking, model.Session) error) (model.Booking, error) {
	var ch Change
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		to, err := Next(b.Status, a)
		if err != nil {
			return err
		}
		sess, err := tx.LockSession(ctx, b.SessionID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(b, sess); err != nil {
				return err
			}
		}
		from := b.Status
		if err := s.transition(ctx, tx, &b, sess, a, to, actorID); err != nil {
			return err
		}
		ch = Change{Booking: b, Session: sess, From: from, Action: a, ActorID: actorID}
		return nil
	})
	if err != nil {
		s.log.Debug().Err(err).Uint64("booking_id", id).Str("action", string(a)).Msg("transition refused")
		return model.Booking{}, err
	}
	s.committed(ctx, ch)
	return ch.Booking, nil
}

// transition writes b's move to status to.  The session row is locked by
// the caller.
func (s *Service) transition(ctx context.Context, tx repository.Tx, b *model.Booking, sess model.Session, a Action, to model.Status, actorID uint64) error {
	now := s.now()
	switch a {
	case ActionConfirm, ActionApprove:
		if s.cfg.RequireVerifiedOrg && b.Type.RequiresVerification() {
			if err := s.checkVerified(ctx, tx, *b); err != nil {
				return err
			}
		}
		consuming, err := tx.SessionBookings(ctx, sess.ID, model.ConsumingStatuses...)
		if err != nil {
			return err
		}
		if err := ledger.Admit(sess, b.Category(), ledger.Without(consuming, b.ID), b.SeatCount()); err != nil {
			return err
		}
		b.ConfirmedAt = &now
		b.ConfirmedBy = &actorID
	case ActionUnconfirm:
		b.ConfirmedAt, b.ConfirmedBy = nil, nil
	case ActionComplete:
		if sess.StartsAt.After(now) {
			return &model.PolicyError{Rule: "session has not taken place yet"}
		}
	case ActionReject, ActionCancel:
		if b.PaymentStatus == model.PaymentCompleted {
			b.PaymentStatus = model.PaymentRefunded
		}
	}
	b.Status = to
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	return s.syncTickets(ctx, tx, *b)
}

// syncTickets makes the active tickets of b match its status: none once
// it is rejected or cancelled, none for a deferred booking that is no
// longer confirmed, and one per seat for a confirmed booking.
func (s *Service) syncTickets(ctx context.Context, tx repository.Tx, b model.Booking) error {
	switch {
	case b.Status == model.StatusRejected || b.Status == model.StatusCancelled,
		b.Type.DefersTickets() && b.Status == model.StatusPending:
		n, err := tx.CancelTickets(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("void tickets of booking %d: %w", b.ID, err)
		}
		if n > 0 {
			s.log.Debug().Uint64("booking_id", b.ID).Int("tickets", n).Msg("tickets voided")
		}
	case b.Status == model.StatusConfirmed:
		active, err := tx.CountActiveTickets(ctx, b.ID)
		if err != nil {
			return err
		}
		if missing := b.SeatCount() - active; missing > 0 {
			if err := tx.InsertTickets(ctx, issueTickets(b, missing)); err != nil {
				return fmt.Errorf("issue tickets of booking %d: %w", b.ID, err)
			}
		}
	}
	return nil
}

func (s *Service) checkVerified(ctx context.Context, tx repository.Tx, b model.Booking) error {
	if b.OrganizationID == nil {
		return &model.PolicyError{Rule: "booking has no organization to verify"}
	}
	org, err := tx.GetOrganization(ctx, *b.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %d: %w", *b.OrganizationID, err)
	}
	if !org.Verified() {
		return &model.PolicyError{Rule: "organization is not verified"}
	}
	return nil
}

// UpdatePayment records a manual payment outcome.  Refunds happen only
// through reject and cancel.
func (s *Service) UpdatePayment(ctx context.Context, id uint64, status model.PaymentStatus, ref string) (model.Booking, error) {
	switch status {
	case model.PaymentPending, model.PaymentCompleted, model.PaymentFailed:
	default:
		return model.Booking{}, model.Invalid("payment_status", "must be pending, completed or failed")
	}
	var out model.Booking
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status.Terminal() {
			return &model.TransitionError{From: b.Status, Action: "update payment of"}
		}
		b.PaymentStatus = status
		if ref != "" {
			b.PaymentRef = ref
		}
		if err := tx.UpdateBooking(ctx, &b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.Info().Uint64("booking_id", id).Str("payment_status", string(status)).Msg("payment updated")
	return out, nil
}

// UpdateCapacity changes the ceilings of a session.  A ceiling may not be
// lowered below the seats its category already consumes; such an edit
// fails with repository.ErrConflict and nothing is written.
func (s *Service) UpdateCapacity(ctx context.Context, sessionID uint64, upd model.CapacityUpdate) (model.Session, []ledger.Availability, error) {
	var (
		sess  model.Session
		avail []ledger.Availability
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		next := upd.Apply(cur)
		if err := next.Validate(); err != nil {
			return err
		}
		consuming, err := tx.SessionBookings(ctx, sessionID, model.ConsumingStatuses...)
		if err != nil {
			return err
		}
		avail = avail[:0]
		for _, c := range ledger.Categories {
			a := ledger.AvailableSeats(next, c, consuming)
			if a.Consumed > a.Total {
				return fmt.Errorf("%w: %s ceiling %d is below the %d seats already booked", repository.ErrConflict, c, a.Total, a.Consumed)
			}
			avail = append(avail, a)
		}
		if err := tx.UpdateSessionCapacity(ctx, next); err != nil {
			return err
		}
		sess = next
		return nil
	})
	if err != nil {
		return model.Session{}, nil, err
	}
	s.log.Info().
		Uint64("session_id", sessionID).
		Int("total_capacity", sess.TotalCapacity).
		Int("b2c_capacity", sess.B2CCapacity).
		Int("partner_quota", sess.PartnerQuota).
		Msg("session capacity updated")
	return sess, avail, nil
}

// VerifyOrganization marks an organisation verified.
func (s *Service) VerifyOrganization(ctx context.Context, orgID uint64) (model.Organization, error) {
	var out model.Organization
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		org, err := tx.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		now := s.now()
		org.VerificationStatus = model.VerificationVerified
		org.VerifiedAt = &now
		if err := tx.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		out = org
		return nil
	})
	if err != nil {
		return model.Organization{}, err
	}
	s.log.Info().Uint64("organization_id", orgID).Msg("organization verified")
	return out, nil
}

// RejectOrganization marks an organisation rejected and rejects its
// bookings still awaiting verification, releasing their seats.  Both
// commit together.  The rejected bookings are returned.
func (s *Service) RejectOrganization(ctx context.Context, orgID, actorID uint64) (model.Organization, []model.Booking, error) {
	var (
		out     model.Organization
		changes []Change
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		changes = changes[:0]
		org, err := tx.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		org.VerificationStatus = model.VerificationRejected
		org.VerifiedAt = nil
		if err := tx.UpdateOrganization(ctx, &org); err != nil {
			return err
		}
		inFlight, err := tx.OrganizationBookings(ctx, orgID, model.StatusAwaitingVerification)
		if err != nil {
			return err
		}
		for _, stale := range inFlight {
			// Re-read under the row lock; an approve may have won the race.
			b, err := tx.GetBooking(ctx, stale.ID)
			if err != nil {
				return err
			}
			if b.Status != model.StatusAwaitingVerification {
				continue
			}
			from := b.Status
			if err := s.transition(ctx, tx, &b, model.Session{ID: b.SessionID}, ActionReject, model.StatusRejected, actorID); err != nil {
				return err
			}
			changes = append(changes, Change{Booking: b, Session: model.Session{ID: b.SessionID}, From: from, Action: ActionReject, ActorID: actorID})
		}
		out = org
		return nil
	})
	if err != nil {
		return model.Organization{}, nil, err
	}
	rejected := make([]model.Booking, 0, len(changes))
	for _, ch := range changes {
		if sess, err := s.store.GetSession(ctx, ch.Booking.SessionID); err == nil {
			ch.Session = sess
		}
		s.committed(ctx, ch)
		rejected = append(rejected, ch.Booking)
	}
	s.log.Info().Uint64("organization_id", orgID).Int("bookings_rejected", len(rejected)).Msg("organization rejected")
	return out, rejected, nil
}

func (s *Service) committed(ctx context.Context, ch Change) {
	s.log.Info().
		Uint64("booking_id", ch.Booking.ID).
		Uint64("session_id", ch.Booking.SessionID).
		Str("action", string(ch.Action)).
		Str("from", string(ch.From)).
		Str("to", string(ch.Booking.Status)).
		Bool("seats_admitted", admits(ch.From, ch.Booking.Status)).
		Uint64("actor_id", ch.ActorID).
		Msg("booking transition")
	if s.cfg.Listener != nil {
		s.cfg.Listener.StatusChanged(ctx, ch)
	}
}

func issueTickets(b model.Booking, n int) []model.Ticket {
	tickets := make([]model.Ticket, 0, n)
	for i := 0; i < n; i++ {
		tickets = append(tickets, model.Ticket{
			BookingID:  b.ID,
			QRCode:     uuid.NewString(),
			Status:     model.TicketActive,
			HolderName: b.Contact.Name,
		})
	}
	return tickets
}

// paymentReference builds the human-facing reference of a booking.
func paymentReference(now time.Time) string {
	return fmt.Sprintf("EDJS-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
}

// IsShortfall reports whether err is a capacity shortfall, raced or not.
func IsShortfall(err error) bool {
	return errors.Is(err, model.ErrCapacityExceeded)
}
