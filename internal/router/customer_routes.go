package router

import (
	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/handler"
	"github.com/edjs/theatre-booking/internal/middleware"
)

// RegisterCustomer registers the booking wizard and the customer's own
// bookings under /v1.  Every route requires a valid JWT.  limiter, when
// not nil, throttles the wizard writes.
func RegisterCustomer(e *echo.Echo, r *handler.ReservationHandler, b *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(customerRoles()...),
	)

	w := g.Group("/reservations/drafts")
	if limiter != nil {
		w.Use(limiter)
	}
	w.POST("", r.Start)
	w.GET("/:id", r.Get)
	w.GET("/:id/sessions", r.Sessions)
	w.PUT("/:id/profile", r.Profile)
	w.PUT("/:id/session", r.Session)
	w.PUT("/:id/details", r.Details)
	w.PUT("/:id/payment", r.Payment)
	w.POST("/:id/submit", r.Submit)

	g.GET("/my-bookings", b.Mine)
	g.GET("/bookings/:id", b.Get)
	g.GET("/bookings/:id/tickets.pdf", b.TicketsPDF)
	g.GET("/bookings/:id/quote.pdf", b.QuotePDF)
	g.DELETE("/bookings/:id", b.Cancel)
}
