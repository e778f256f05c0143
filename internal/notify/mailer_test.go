package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/queue"
	"github.com/edjs/theatre-booking/internal/reservation"
)

type fakeSender struct {
	msgs []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.msgs = append(f.msgs, m...)
	return f.err
}

func event(kind string, st model.Status) queue.BookingEvent {
	return queue.BookingEvent{
		Kind: kind,
		Booking: reservation.Notification{
			BookingID: 5, Status: st, RecipientName: "Jeanne Moreau", RecipientEmail: "jeanne@example.com",
			SpectacleTitle: "Cyrano", StartsAt: time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC),
			Venue: "Salle Molière", City: "Lyon", Seats: 2, AmountCents: 3000, Reference: "EDJS-20261019-0badf00d",
		},
	}
}

func TestComposeSubmitted(t *testing.T) {
	subject, body, err := Compose(event(queue.BookingSubmittedQueue, model.StatusConfirmed))
	require.NoError(t, err)
	assert.Equal(t, "Réservation confirmée EDJS-20261019-0badf00d", subject)
	assert.Contains(t, body, "Cyrano")
	assert.Contains(t, body, "01/12/2026 20:00")
	assert.Contains(t, body, "30,00 €")
	assert.NotContains(t, body, "devis")
}

func TestComposeStatusChanges(t *testing.T) {
	tests := []struct {
		status  model.Status
		subject string
	}{
		{model.StatusRejected, "Réservation refusée"},
		{model.StatusCancelled, "Réservation annulée"},
		{model.StatusPending, "Réservation en attente"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			subject, _, err := Compose(event(queue.BookingStatusChangedQueue, tt.status))
			require.NoError(t, err)
			assert.Contains(t, subject, tt.subject)
		})
	}
}

func TestHandleBookingEventSends(t *testing.T) {
	s := &fakeSender{}
	m := NewMailerWith(s, "billetterie@edjs.fr", zerolog.Nop())

	require.NoError(t, m.HandleBookingEvent(context.Background(), event(queue.BookingSubmittedQueue, model.StatusPending)))
	require.Len(t, s.msgs, 1)
	assert.Equal(t, []string{"billetterie@edjs.fr"}, s.msgs[0].GetHeader("From"))

	var buf bytes.Buffer
	_, err := s.msgs[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "jeanne@example.com")
}

func TestHandleBookingEventSkipsMissingRecipient(t *testing.T) {
	s := &fakeSender{}
	ev := event(queue.BookingSubmittedQueue, model.StatusPending)
	ev.Booking.RecipientEmail = ""
	require.NoError(t, NewMailerWith(s, "x@edjs.fr", zerolog.Nop()).HandleBookingEvent(context.Background(), ev))
	assert.Empty(t, s.msgs)
}

func TestHandleBookingEventReportsSendFailure(t *testing.T) {
	boom := errors.New("smtp refused")
	s := &fakeSender{err: boom}
	err := NewMailerWith(s, "x@edjs.fr", zerolog.Nop()).HandleBookingEvent(context.Background(), event(queue.BookingSubmittedQueue, model.StatusPending))
	require.ErrorIs(t, err, boom)
}
