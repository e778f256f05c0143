package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

const (
	toutPublicSession   = 1
	publicSchoolSession = 2
	schoolOrg           = 7
	adminID             = 99
)

type recordingListener struct {
	mu      sync.Mutex
	changes []Change
}

func (l *recordingListener) StatusChanged(_ context.Context, ch Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, ch)
}

func newFixture(t *testing.T, cfg Config) (*Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	starts := time.Now().UTC().Add(72 * time.Hour)
	store.PutSession(model.Session{
		ID: toutPublicSession, SpectacleID: 1, SpectacleTitle: "Le Petit Prince",
		StartsAt: starts, TotalCapacity: 100, B2CCapacity: 20, PartnerQuota: 10,
		Type: model.SessionToutPublic, Status: model.SessionPublished,
	})
	store.PutSession(model.Session{
		ID: publicSchoolSession, SpectacleID: 1, SpectacleTitle: "Le Petit Prince",
		StartsAt: starts, TotalCapacity: 60, B2CCapacity: 0, PartnerQuota: 0,
		Type: model.SessionPublicSchool, Status: model.SessionPublished,
	})
	store.PutOrganization(model.Organization{
		ID: schoolOrg, Kind: model.BookingPublicSchool, Name: "École Jules Ferry",
		VerificationStatus: model.VerificationPending, MaxFreeTickets: 80,
	})
	return NewService(store, zerolog.Nop(), cfg), store
}

func individual(userID uint64, tickets int) model.Booking {
	return model.Booking{
		SessionID: toutPublicSession, UserID: userID, Type: model.BookingIndividual,
		Seats:         model.IndividualSeats{Tickets: tickets},
		PaymentMethod: model.PaymentCard,
		Contact:       model.Contact{Name: "Ada", Email: "ada@example.com", Phone: "0600000000"},
	}
}

func school(userID uint64, students, accompanists int) model.Booking {
	org := uint64(schoolOrg)
	return model.Booking{
		SessionID: publicSchoolSession, UserID: userID, OrganizationID: &org,
		Type:          model.BookingPublicSchool,
		Seats:         model.ProfessionalSeats{Students: students, Accompanists: accompanists},
		PaymentMethod: model.PaymentFree,
		Contact:       model.Contact{Name: "Mme Martin", Email: "martin@ecole.fr", Phone: "0100000000"},
	}
}

func available(t *testing.T, store repository.Store, sessionID uint64, c model.Category) int {
	t.Helper()
	a, err := ledger.New(store).Availability(context.Background(), sessionID, c)
	require.NoError(t, err)
	return a.Available
}

func TestConcurrentIndividualSubmissionsOnlyOneFits(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, Submission{Booking: individual(uint64(i+1), 15), Settled: true})
		}(i)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		failed++
		require.True(t, IsShortfall(err), "unexpected error: %v", err)
		var ce *model.CapacityError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 10, ce.Shortfall())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 5, available(t, store, toutPublicSession, model.CategoryIndividual))

	_, err := svc.Create(ctx, Submission{Booking: individual(3, 5), Settled: true})
	require.NoError(t, err)
	assert.Equal(t, 0, available(t, store, toutPublicSession, model.CategoryIndividual))
}

func TestNoOverbookingUnderConcurrency(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := i%4 + 1
			_, err := svc.Create(ctx, Submission{Booking: individual(uint64(i), n), Settled: true})
			if err != nil {
				assert.True(t, IsShortfall(err), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			admitted += n
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	bookings, err := store.SessionBookings(ctx, toutPublicSession, model.ConsumingStatuses...)
	require.NoError(t, err)
	s, err := store.GetSession(ctx, toutPublicSession)
	require.NoError(t, err)
	consumed := ledger.Consumed(s, model.CategoryIndividual, bookings)
	assert.Equal(t, admitted, consumed)
	assert.LessOrEqual(t, consumed, s.B2CCapacity)
}

func TestCreateIssuesOneTicketPerSeat(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 3)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, out.Booking.Status)
	assert.Equal(t, model.PaymentPending, out.Booking.PaymentStatus)
	assert.NotEmpty(t, out.Booking.PaymentRef)
	require.Len(t, out.Tickets, 3)

	stored, err := store.BookingTickets(ctx, out.Booking.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	seen := map[string]bool{}
	for _, tk := range stored {
		assert.Equal(t, model.TicketActive, tk.Status)
		assert.False(t, seen[tk.QRCode], "duplicate qr code")
		seen[tk.QRCode] = true
	}
}

func TestCreateRejectsBadInputWithoutWriting(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	_, err := svc.Create(ctx, Submission{Booking: individual(1, 0)})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	wrongAudience := individual(1, 2)
	wrongAudience.SessionID = publicSchoolSession
	_, err = svc.Create(ctx, Submission{Booking: wrongAudience})
	require.ErrorAs(t, err, &ve)

	_, err = svc.Create(ctx, Submission{Booking: individual(1, 21)})
	require.True(t, IsShortfall(err))

	bookings, err := store.SessionBookings(ctx, toutPublicSession)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCreateRefusesClosedSession(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()
	s, err := store.GetSession(ctx, toutPublicSession)
	require.NoError(t, err)
	s.Status = model.SessionClosed
	store.PutSession(s)

	_, err = svc.Create(ctx, Submission{Booking: individual(1, 2)})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "session_id", ve.Field)
}

func TestConfirmRechecksCapacity(t *testing.T) {
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()

	first, err := svc.Create(ctx, Submission{Booking: individual(1, 12)})
	require.NoError(t, err)
	second, err := svc.Create(ctx, Submission{Booking: individual(2, 12)})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, first.Booking.ID, adminID)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, second.Booking.ID, adminID)
	require.True(t, IsShortfall(err))

	b, err := svc.store.GetBooking(ctx, second.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Nil(t, b.ConfirmedAt)
}

func TestUnconfirmRestoresAvailability(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 6)})
	require.NoError(t, err)
	before := available(t, store, toutPublicSession, model.CategoryIndividual)

	confirmed, err := svc.Confirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, uint64(adminID), *confirmed.ConfirmedBy)
	assert.Equal(t, before-6, available(t, store, toutPublicSession, model.CategoryIndividual))

	back, err := svc.Unconfirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, back.Status)
	assert.Nil(t, back.ConfirmedAt)
	assert.Nil(t, back.ConfirmedBy)
	assert.Equal(t, before, available(t, store, toutPublicSession, model.CategoryIndividual))
}

func TestRejectReleasesAwaitingSeats(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: school(1, 25, 3)})
	require.NoError(t, err)
	require.Equal(t, model.StatusAwaitingVerification, out.Booking.Status)
	before := available(t, store, publicSchoolSession, model.CategoryProfessional)
	assert.Equal(t, 60-28, before)

	_, err = svc.Reject(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, before+28, available(t, store, publicSchoolSession, model.CategoryProfessional))

	tickets, err := store.BookingTickets(ctx, out.Booking.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketCancelled, tk.Status)
	}
}

func TestApproveRequiresVerifiedOrganization(t *testing.T) {
	svc, _ := newFixture(t, Config{RequireVerifiedOrg: true})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: school(1, 20, 2)})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, out.Booking.ID, adminID)
	var pe *model.PolicyError
	require.ErrorAs(t, err, &pe)

	_, err = svc.VerifyOrganization(ctx, schoolOrg)
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, approved.Status)
}

func TestReconfirmRequiresVerifiedOrganization(t *testing.T) {
	svc, store := newFixture(t, Config{RequireVerifiedOrg: true})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: school(1, 20, 2)})
	require.NoError(t, err)
	_, err = svc.VerifyOrganization(ctx, schoolOrg)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	back, err := svc.Unconfirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, back.Status)

	org, err := store.GetOrganization(ctx, schoolOrg)
	require.NoError(t, err)
	org.VerificationStatus, org.VerifiedAt = model.VerificationPending, nil
	store.PutOrganization(org)

	_, err = svc.Confirm(ctx, out.Booking.ID, adminID)
	var pe *model.PolicyError
	require.ErrorAs(t, err, &pe)
	got, err := store.GetBooking(ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = svc.VerifyOrganization(ctx, schoolOrg)
	require.NoError(t, err)
	confirmed, err := svc.Confirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
}

func TestApproveExcludesOwnSeatsFromRecheck(t *testing.T) {
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: school(1, 54, 6)})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, approved.Status)
}

func TestInvalidTransitions(t *testing.T) {
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 2)})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, out.Booking.ID, adminID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = svc.Unconfirm(ctx, out.Booking.ID, adminID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = svc.Reject(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, out.Booking.ID, adminID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = svc.Confirm(ctx, 4242, adminID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelOwnChecksOwnerAndRefunds(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 4), Settled: true})
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, out.Booking.Status)

	_, err = svc.CancelOwn(ctx, out.Booking.ID, 2)
	require.ErrorIs(t, err, repository.ErrForbidden)

	cancelled, err := svc.CancelOwn(ctx, out.Booking.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, model.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, 20, available(t, store, toutPublicSession, model.CategoryIndividual))
}

func TestCompleteWaitsForSession(t *testing.T) {
	later := time.Now().Add(96 * time.Hour)
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 2), Settled: true})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, out.Booking.ID, adminID)
	var pe *model.PolicyError
	require.ErrorAs(t, err, &pe)

	svc.cfg.Now = func() time.Time { return later }
	done, err := svc.Complete(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestRejectOrganizationCascades(t *testing.T) {
	listener := &recordingListener{}
	svc, store := newFixture(t, Config{Listener: listener})
	ctx := context.Background()

	a, err := svc.Create(ctx, Submission{Booking: school(1, 10, 1)})
	require.NoError(t, err)
	b, err := svc.Create(ctx, Submission{Booking: school(2, 12, 1)})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, b.Booking.ID, adminID)
	require.NoError(t, err)

	org, rejected, err := svc.RejectOrganization(ctx, schoolOrg, adminID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationRejected, org.VerificationStatus)
	require.Len(t, rejected, 1)
	assert.Equal(t, a.Booking.ID, rejected[0].ID)
	assert.Equal(t, 60, available(t, store, publicSchoolSession, model.CategoryProfessional))

	_, err = svc.Create(ctx, Submission{Booking: school(3, 5, 1)})
	var pe *model.PolicyError
	require.ErrorAs(t, err, &pe)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.Len(t, listener.changes, 2)
	assert.Equal(t, ActionReject, listener.changes[1].Action)
}

func TestUpdateCapacityRefusesShrinkBelowConsumed(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()

	_, err := svc.Create(ctx, Submission{Booking: individual(1, 8), Settled: true})
	require.NoError(t, err)

	seven := 7
	_, _, err = svc.UpdateCapacity(ctx, toutPublicSession, model.CapacityUpdate{B2CCapacity: &seven})
	require.ErrorIs(t, err, repository.ErrConflict)

	tooBig := 150
	_, _, err = svc.UpdateCapacity(ctx, toutPublicSession, model.CapacityUpdate{B2CCapacity: &tooBig})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	eight := 8
	s, avail, err := svc.UpdateCapacity(ctx, toutPublicSession, model.CapacityUpdate{B2CCapacity: &eight})
	require.NoError(t, err)
	assert.Equal(t, 8, s.B2CCapacity)
	require.Len(t, avail, 3)
	assert.Equal(t, 0, avail[0].Available)
	assert.Equal(t, 0, available(t, store, toutPublicSession, model.CategoryIndividual))
}

func TestUpdatePayment(t *testing.T) {
	svc, _ := newFixture(t, Config{})
	ctx := context.Background()

	out, err := svc.Create(ctx, Submission{Booking: individual(1, 2)})
	require.NoError(t, err)

	b, err := svc.UpdatePayment(ctx, out.Booking.ID, model.PaymentCompleted, "VIR-123")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, b.PaymentStatus)
	assert.Equal(t, "VIR-123", b.PaymentRef)

	_, err = svc.UpdatePayment(ctx, out.Booking.ID, model.PaymentRefunded, "")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestDeferredTicketsFollowConfirmation(t *testing.T) {
	svc, store := newFixture(t, Config{})
	ctx := context.Background()
	s, err := store.GetSession(ctx, publicSchoolSession)
	require.NoError(t, err)
	s.ID = 3
	s.Type = model.SessionPrivateSchool
	store.PutSession(s)

	out, err := svc.Create(ctx, Submission{Booking: model.Booking{
		SessionID: 3, UserID: 1, Type: model.BookingPrivateSchool,
		Seats:         model.ProfessionalSeats{Students: 10, Accompanists: 2},
		PaymentMethod: model.PaymentTransfer,
		Contact:       model.Contact{Name: "M. Durand", Email: "durand@prive.fr", Phone: "0200000000"},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, out.Booking.Status)
	assert.Empty(t, out.Tickets)

	_, err = svc.Confirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	tickets, err := store.BookingTickets(ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 12)

	_, err = svc.Unconfirm(ctx, out.Booking.ID, adminID)
	require.NoError(t, err)
	tickets, err = store.BookingTickets(ctx, out.Booking.ID)
	require.NoError(t, err)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketCancelled, tk.Status)
	}
}
