package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/document"
	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// QuoteSource reads back the quote PDF stored for a booking.
type QuoteSource interface {
	LoadQuote(b model.Booking) ([]byte, error)
}

// BookingHandler serves a customer's own bookings.
type BookingHandler struct {
	store     repository.Store
	lifecycle *lifecycle.Service
	quotes    QuoteSource
}

// NewBookingHandler returns a BookingHandler.  quotes may be nil, in which
// case no booking has a quote to download.
func NewBookingHandler(store repository.Store, lc *lifecycle.Service, quotes QuoteSource) *BookingHandler {
	return &BookingHandler{store: store, lifecycle: lc, quotes: quotes}
}

// Mine handles GET /v1/my-bookings.
func (h *BookingHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bs, err := h.store.UserBookings(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toBookingViews(bs), "count": len(bs)})
}

// owned loads booking :id for the requester.  Admins may read any
// booking; customers get 404 for bookings that are not theirs.
func (h *BookingHandler) owned(c echo.Context) (model.Booking, error) {
	id, ok := pathID(c, "id")
	if !ok {
		return model.Booking{}, model.Invalid("id", "invalid id")
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return model.Booking{}, repository.ErrForbidden
	}
	b, err := h.store.GetBooking(c.Request().Context(), id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.UserID != who.UserID && !isAdmin(who.Role) {
		return model.Booking{}, repository.ErrNotFound
	}
	return b, nil
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	tickets, err := h.store.BookingTickets(c.Request().Context(), b.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": toBookingView(b),
		"tickets": toTicketViews(tickets),
	})
}

// TicketsPDF handles GET /v1/bookings/:id/tickets.pdf.
func (h *BookingHandler) TicketsPDF(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	s, err := h.store.GetSession(ctx, b.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	tickets, err := h.store.BookingTickets(ctx, b.ID)
	if err != nil {
		return respondError(c, err)
	}
	var buf bytes.Buffer
	if err := document.TicketSheet(&buf, b, s, tickets); err != nil {
		if errors.Is(err, document.ErrNoTickets) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "booking has no active tickets"})
		}
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=\"billets-%s.pdf\"", b.PaymentRef))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// QuotePDF handles GET /v1/bookings/:id/quote.pdf.
func (h *BookingHandler) QuotePDF(c echo.Context) error {
	b, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	if b.QuoteURL == nil || h.quotes == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking has no quote"})
	}
	pdf, err := h.quotes.LoadQuote(b)
	if err != nil {
		if errors.Is(err, document.ErrNoQuote) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking has no quote"})
		}
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=\"devis-%s.pdf\"", b.PaymentRef))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// Cancel handles DELETE /v1/bookings/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	b, err := h.lifecycle.CancelOwn(c.Request().Context(), id, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingView(b))
}

func isAdmin(role string) bool {
	for _, r := range model.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}
