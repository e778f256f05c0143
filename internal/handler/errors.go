package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edjs/theatre-booking/internal/middleware"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
)

// respondError maps domain errors onto HTTP answers. Capacity shortfalls
// report how many seats are missing, never how many remain, and a lost
// admission race reads exactly like any other shortfall.
func respondError(c echo.Context, err error) error {
	var (
		ve *model.ValidationError
		ce *model.CapacityError
		pe *model.PolicyError
		te *model.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		body := echo.Map{"error": ve.Message}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &ce):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     fmt.Sprintf("not enough seats left: %d seat(s) short", ce.Shortfall()),
			"shortfall": ce.Shortfall(),
		})
	case errors.As(err, &te):
		return c.JSON(http.StatusConflict, echo.Map{"error": te.Error()})
	case errors.As(err, &pe):
		return c.JSON(http.StatusForbidden, echo.Map{"error": pe.Rule})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// getUserID extracts the authenticated user id from the context.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id.UserID, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	return n, err == nil && n != 0
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
