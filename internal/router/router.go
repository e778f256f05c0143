package router

import (
	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/handler"
	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
)

// RegisterRoutes registers the probes.  ready may be nil.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}

// RegisterAuth registers the authentication routes.  Register, login,
// refresh and logout live under /v1/auth without a token; /v1/me needs
// one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers the unauthenticated catalogue.  Only the list
// goes through the response cache; detail and availability reads always
// hit the store.  cache may be nil.
func RegisterPublic(e *echo.Echo, s *handler.SessionHandler, cache echo.MiddlewareFunc) {
	if cache != nil {
		e.GET("/v1/sessions", s.List, cache)
	} else {
		e.GET("/v1/sessions", s.List)
	}
	e.GET("/v1/sessions/:id", s.Get)
	e.GET("/v1/sessions/:id/availability", s.Availability)
}

// customerRoles may run the wizard and manage their own bookings.  Admins
// are included so staff can book on the phone for a caller.
func customerRoles() []string {
	return append(append([]string{}, model.CustomerRoles...), model.AdminRoles...)
}
