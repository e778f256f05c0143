package document

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/reservation"
)

func fixtures() (model.Booking, model.Session) {
	s := model.Session{
		ID: 3, SpectacleTitle: "Le Petit Prince", StartsAt: time.Date(2026, 11, 20, 14, 30, 0, 0, time.UTC),
		Venue: "Théâtre des Célestins", City: "Lyon", StudentPriceCents: 750,
	}
	b := model.Booking{
		ID: 12, SessionID: 3, Type: model.BookingPrivateSchool,
		Seats:            model.ProfessionalSeats{Students: 24, Accompanists: 3},
		TotalAmountCents: 18000, PaymentRef: "EDJS-20261019-ab12cd34",
		Contact: model.Contact{Name: "École Sainte-Marie", Email: "direction@sainte-marie.fr", Phone: "0478000000"},
	}
	return b, s
}

func TestEuros(t *testing.T) {
	assert.Equal(t, "0,00 €", Euros(0))
	assert.Equal(t, "7,50 €", Euros(750))
	assert.Equal(t, "180,00 €", Euros(18000))
}

func TestGenerateQuoteWritesFile(t *testing.T) {
	b, s := fixtures()
	dir := t.TempDir()
	r := NewQuoteRenderer(dir, "http://localhost:8080/v1/")

	url, err := r.GenerateQuote(context.Background(), reservation.Quote{Booking: b, Session: s, UnitPriceCents: s.StudentPriceCents})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1/bookings/12/quote.pdf", url)
	assert.NotContains(t, url, b.PaymentRef, "the URL must not reveal where the file lives")

	bs, err := os.ReadFile(filepath.Join(dir, "quotes", QuoteFileName(b)))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(bs, []byte("%PDF-")))

	loaded, err := r.LoadQuote(b)
	require.NoError(t, err)
	assert.Equal(t, bs, loaded)
}

func TestLoadQuoteMissing(t *testing.T) {
	b, _ := fixtures()
	_, err := NewQuoteRenderer(t.TempDir(), "/v1").LoadQuote(b)
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestGenerateQuoteHonoursCancelledContext(t *testing.T) {
	b, s := fixtures()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewQuoteRenderer(t.TempDir(), "").GenerateQuote(ctx, reservation.Quote{Booking: b, Session: s})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTicketSheet(t *testing.T) {
	b, s := fixtures()
	b.Type = model.BookingIndividual
	b.Seats = model.IndividualSeats{Tickets: 2}
	tickets := []model.Ticket{
		{ID: 1, BookingID: b.ID, QRCode: "9b2f7c1e-0d1a-4a53-9f3e-1c1b2d3e4f50", Status: model.TicketActive, HolderName: "Jeanne"},
		{ID: 2, BookingID: b.ID, QRCode: "0e6d2a9b-7c4f-4e1b-8a2d-5f6e7a8b9c0d", Status: model.TicketCancelled, HolderName: "Jeanne"},
	}

	var buf bytes.Buffer
	require.NoError(t, TicketSheet(&buf, b, s, tickets))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.ErrorIs(t, TicketSheet(&buf, b, s, tickets[1:]), ErrNoTickets)
}
