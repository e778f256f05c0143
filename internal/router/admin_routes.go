package router

import (
	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/handler"
	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
)

// RegisterAdmin registers the booking console under /v1/admin.  Every
// route requires ADMIN or SUPER_ADMIN; capacity edits are SUPER_ADMIN
// only.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.AdminRoles...),
	)
	g.GET("/sessions/:id/bookings", h.SessionBookings)
	g.PATCH("/sessions/:id/capacity", h.UpdateCapacity, middleware.RequireRole(model.RoleSuperAdmin))

	g.GET("/bookings/export.csv", h.Export)
	// Static segment wins over :action.
	g.POST("/bookings/:id/payment", h.Payment)
	g.POST("/bookings/:id/:action", h.Transition)

	g.POST("/organizations/:id/verify", h.VerifyOrganization)
	g.POST("/organizations/:id/reject", h.RejectOrganization)
}
