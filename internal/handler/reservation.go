package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/reservation"
)

// ReservationHandler exposes the booking wizard.  Every step answers with
// the updated draft so the client always knows which step comes next.
type ReservationHandler struct {
	flow *reservation.Flow
}

func NewReservationHandler(flow *reservation.Flow) *ReservationHandler {
	return &ReservationHandler{flow: flow}
}

type draftView struct {
	ID                string              `json:"id"`
	Step              reservation.Step    `json:"step"`
	Type              model.BookingType   `json:"booking_type,omitempty"`
	Category          model.Category      `json:"category,omitempty"`
	SessionID         uint64              `json:"session_id,omitempty"`
	NumberOfTickets   int                 `json:"number_of_tickets,omitempty"`
	StudentsCount     int                 `json:"students_count,omitempty"`
	AccompanistsCount int                 `json:"accompanists_count,omitempty"`
	MaxAccompanists   int                 `json:"max_accompanists,omitempty"`
	Contact           contactView         `json:"contact"`
	PaymentMethod     model.PaymentMethod `json:"payment_method,omitempty"`
	TotalAmountCents  uint32              `json:"total_amount_cents"`
}

func toDraftView(d reservation.Draft) draftView {
	v := draftView{
		ID: d.ID, Step: d.Step, Type: d.Type, SessionID: d.SessionID,
		NumberOfTickets: d.Tickets, StudentsCount: d.Students, AccompanistsCount: d.Accompanists,
		Contact:       contactView{Name: d.Contact.Name, Email: d.Contact.Email, Phone: d.Contact.Phone},
		PaymentMethod: d.PaymentMethod, TotalAmountCents: d.AmountCents,
	}
	if d.Type != "" {
		v.Category = d.Category()
	}
	if d.Type.Professional() {
		v.MaxAccompanists = reservation.MaxAccompanists(d.Students)
	}
	return v
}

type startReq struct {
	Category string `json:"category"`
}

type sessionReq struct {
	SessionID uint64 `json:"session_id" validate:"required"`
}

type detailsReq struct {
	NumberOfTickets   int    `json:"number_of_tickets" validate:"gte=0"`
	StudentsCount     int    `json:"students_count" validate:"gte=0"`
	AccompanistsCount int    `json:"accompanists_count" validate:"gte=0"`
	ContactName       string `json:"contact_name"`
	ContactEmail      string `json:"contact_email"`
	ContactPhone      string `json:"contact_phone"`
}

type paymentReq struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// Start handles POST /v1/reservations/drafts.  The category may come from
// the body or from ?category= when the wizard is entered from a listing.
func (h *ReservationHandler) Start(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	var req startReq
	_ = c.Bind(&req)
	if req.Category == "" {
		req.Category = c.QueryParam("category")
	}
	p := reservation.Profile{UserID: id.UserID, OrganizationID: id.OrganizationID}
	if t, ok := model.ParseBookingType(id.ProfileType); ok {
		p.Type = t
	}
	d, err := h.flow.Start(c.Request().Context(), p, req.Category)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toDraftView(d))
}

// Get handles GET /v1/reservations/drafts/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	d, err := h.flow.Get(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDraftView(d))
}

// Profile handles PUT /v1/reservations/drafts/:id/profile.
func (h *ReservationHandler) Profile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req startReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	d, err := h.flow.ChooseProfile(c.Request().Context(), c.Param("id"), uid, req.Category)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDraftView(d))
}

// Sessions handles GET /v1/reservations/drafts/:id/sessions, the session
// step listing for the draft's audience.
func (h *ReservationHandler) Sessions(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	d, err := h.flow.Get(ctx, c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	if d.Type == "" {
		return c.JSON(http.StatusConflict, echo.Map{"error": "choose a profile first"})
	}
	opts, err := h.flow.Sessions(ctx, d.Type)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]sessionView, 0, len(opts))
	for _, o := range opts {
		v := toSessionView(o.Session, o.Availability)
		bookable := o.Bookable
		v.Bookable = &bookable
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "count": len(out)})
}

// Session handles PUT /v1/reservations/drafts/:id/session.
func (h *ReservationHandler) Session(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req sessionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	d, err := h.flow.ChooseSession(c.Request().Context(), c.Param("id"), uid, req.SessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDraftView(d))
}

// Details handles PUT /v1/reservations/drafts/:id/details.
func (h *ReservationHandler) Details(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req detailsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	d, err := h.flow.SetDetails(c.Request().Context(), c.Param("id"), uid, reservation.Details{
		Tickets:      req.NumberOfTickets,
		Students:     req.StudentsCount,
		Accompanists: req.AccompanistsCount,
		Contact:      model.Contact{Name: req.ContactName, Email: req.ContactEmail, Phone: req.ContactPhone},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDraftView(d))
}

// Payment handles PUT /v1/reservations/drafts/:id/payment.
func (h *ReservationHandler) Payment(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req paymentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	d, err := h.flow.ChoosePayment(c.Request().Context(), c.Param("id"), uid, req.PaymentMethod)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDraftView(d))
}

// Submit handles POST /v1/reservations/drafts/:id/submit.
func (h *ReservationHandler) Submit(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	r, err := h.flow.Submit(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking": toBookingView(r.Booking),
		"session": toSessionView(r.Session),
		"tickets": toTicketViews(r.Tickets),
	})
}
