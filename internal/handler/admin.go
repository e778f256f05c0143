package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// AdminHandler is the booking console of the theatre staff.
type AdminHandler struct {
	store     repository.Store
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Service
}

func NewAdminHandler(store repository.Store, lc *lifecycle.Service) *AdminHandler {
	return &AdminHandler{store: store, ledger: ledger.New(store), lifecycle: lc}
}

type adminBookingView struct {
	bookingView
	Actions []lifecycle.Action `json:"actions"`
}

type paymentUpdateReq struct {
	PaymentStatus    string `json:"payment_status" validate:"required,oneof=pending completed failed"`
	PaymentReference string `json:"payment_reference" validate:"max=64"`
}

type capacityReq struct {
	TotalCapacity *int `json:"total_capacity" validate:"omitempty,gte=0"`
	B2CCapacity   *int `json:"b2c_capacity" validate:"omitempty,gte=0"`
	PartnerQuota  *int `json:"partner_quota" validate:"omitempty,gte=0"`
}

// SessionBookings handles GET /v1/admin/sessions/:id/bookings.  It answers
// the session, its three pools and its bookings with the actions each one
// allows.  ?status= narrows the bookings.
func (h *AdminHandler) SessionBookings(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	s, pools, err := h.ledger.Overview(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	var statuses []model.Status
	if v := strings.TrimSpace(c.QueryParam("status")); v != "" {
		st, ok := model.ParseStatus(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status " + v, "field": "status"})
		}
		statuses = append(statuses, st)
	}
	bs, err := h.store.SessionBookings(ctx, id, statuses...)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]adminBookingView, 0, len(bs))
	for _, b := range bs {
		items = append(items, adminBookingView{bookingView: toBookingView(b), Actions: lifecycle.Allowed(b.Status)})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session":  toSessionView(s),
		"capacity": capacityView{TotalCapacity: s.TotalCapacity, B2CCapacity: s.B2CCapacity, PartnerQuota: s.PartnerQuota},
		"pools":    pools,
		"bookings": items,
	})
}

// Transition handles POST /v1/admin/bookings/:id/:action for confirm,
// approve, reject, unconfirm, cancel and complete.
func (h *AdminHandler) Transition(c echo.Context) error {
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	a, ok := lifecycle.ParseAction(c.Param("action"))
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown action " + c.Param("action")})
	}
	b, err := h.lifecycle.Apply(c.Request().Context(), id, a, who.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, adminBookingView{bookingView: toBookingView(b), Actions: lifecycle.Allowed(b.Status)})
}

// Payment handles POST /v1/admin/bookings/:id/payment.
func (h *AdminHandler) Payment(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req paymentUpdateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	b, err := h.lifecycle.UpdatePayment(c.Request().Context(), id, model.PaymentStatus(req.PaymentStatus), strings.TrimSpace(req.PaymentReference))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBookingView(b))
}

// VerifyOrganization handles POST /v1/admin/organizations/:id/verify.
func (h *AdminHandler) VerifyOrganization(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	org, err := h.lifecycle.VerifyOrganization(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrganizationView(org))
}

// RejectOrganization handles POST /v1/admin/organizations/:id/reject.
func (h *AdminHandler) RejectOrganization(c echo.Context) error {
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	org, rejected, err := h.lifecycle.RejectOrganization(c.Request().Context(), id, who.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"organization":      toOrganizationView(org),
		"rejected_bookings": toBookingViews(rejected),
	})
}

// UpdateCapacity handles PATCH /v1/admin/sessions/:id/capacity.
func (h *AdminHandler) UpdateCapacity(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req capacityReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	if req.TotalCapacity == nil && req.B2CCapacity == nil && req.PartnerQuota == nil {
		return badRequest(c, "nothing to update")
	}
	s, pools, err := h.lifecycle.UpdateCapacity(c.Request().Context(), id, model.CapacityUpdate{
		TotalCapacity: req.TotalCapacity, B2CCapacity: req.B2CCapacity, PartnerQuota: req.PartnerQuota,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session":  toSessionView(s),
		"capacity": capacityView{TotalCapacity: s.TotalCapacity, B2CCapacity: s.B2CCapacity, PartnerQuota: s.PartnerQuota},
		"pools":    pools,
	})
}

var exportHeader = []string{
	"id", "session_id", "booking_type", "category", "status", "seats",
	"number_of_tickets", "students_count", "accompanists_count",
	"contact_name", "contact_email", "contact_phone",
	"payment_method", "payment_status", "total_amount_cents", "payment_reference", "created_at",
}

// Export handles GET /v1/admin/bookings/export.csv?session_id=.
func (h *AdminHandler) Export(c echo.Context) error {
	sid, err := strconv.ParseUint(c.QueryParam("session_id"), 10, 64)
	if err != nil || sid == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id required", "field": "session_id"})
	}
	ctx := c.Request().Context()
	if _, err := h.store.GetSession(ctx, sid); err != nil {
		return respondError(c, err)
	}
	bs, err := h.store.SessionBookings(ctx, sid)
	if err != nil {
		return respondError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"reservations-seance-%d.csv\"", sid))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, b := range bs {
		v := toBookingView(b)
		row := []string{
			strconv.FormatUint(v.ID, 10), strconv.FormatUint(v.SessionID, 10),
			string(v.Type), string(v.Category), string(v.Status), strconv.Itoa(v.Seats),
			strconv.Itoa(v.NumberOfTickets), strconv.Itoa(v.StudentsCount), strconv.Itoa(v.AccompanistsCount),
			csvCell(v.Contact.Name), csvCell(v.Contact.Email), csvCell(v.Contact.Phone),
			string(v.PaymentMethod), string(v.PaymentStatus),
			strconv.FormatUint(uint64(v.TotalAmountCents), 10), csvCell(v.PaymentReference),
			v.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// csvCell quotes user supplied text so spreadsheets do not evaluate it as
// a formula.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
