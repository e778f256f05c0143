package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
	"github.com/edjs/theatre-booking/internal/reservation"
)

// SessionHandler serves the public catalogue of performances.
type SessionHandler struct {
	store  repository.Store
	ledger *ledger.Ledger
	flow   *reservation.Flow
}

func NewSessionHandler(store repository.Store, flow *reservation.Flow) *SessionHandler {
	return &SessionHandler{store: store, ledger: ledger.New(store), flow: flow}
}

// List handles GET /v1/sessions.  With ?category= only the sessions open
// to that audience are returned, each with its pool availability and a
// bookable flag; full sessions stay listed.  Without it every published
// upcoming session is returned with all three pools.
func (h *SessionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	if cat := strings.TrimSpace(c.QueryParam("category")); cat != "" {
		t, err := reservation.ResolveType(cat, "")
		if err != nil {
			return respondError(c, err)
		}
		opts, err := h.flow.Sessions(ctx, t)
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

	f := repository.SessionFilter{Status: model.SessionPublished, From: time.Now(), City: strings.TrimSpace(c.QueryParam("city"))}
	if v := c.QueryParam("spectacle_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid spectacle_id", "field": "spectacle_id"})
		}
		f.SpectacleID = id
	}
	sessions, err := h.store.ListSessions(ctx, f)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		_, pools, err := h.ledger.Overview(ctx, s.ID)
		if err != nil {
			return respondError(c, err)
		}
		out = append(out, toSessionView(s, pools...))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "count": len(out)})
}

// Get handles GET /v1/sessions/:id.  Unpublished sessions are not found.
func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	s, pools, err := h.ledger.Overview(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if s.Status != model.SessionPublished {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	v := toSessionView(s, pools...)
	bookable := s.Bookable(time.Now())
	v.Bookable = &bookable
	return c.JSON(http.StatusOK, v)
}

// Availability handles GET /v1/sessions/:id/availability?category=.
func (h *SessionHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx := c.Request().Context()
	if cat := strings.TrimSpace(c.QueryParam("category")); cat != "" {
		category, ok := model.ParseCategory(cat)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown category " + cat, "field": "category"})
		}
		a, err := h.ledger.Availability(ctx, id, category)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, a)
	}
	_, pools, err := h.ledger.Overview(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": id, "pools": pools})
}
