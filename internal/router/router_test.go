package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/edjs/theatre-booking/internal/config"
	"github.com/edjs/theatre-booking/internal/document"
	"github.com/edjs/theatre-booking/internal/handler"
	"github.com/edjs/theatre-booking/internal/lifecycle"
	"github.com/edjs/theatre-booking/internal/model"
	"github.com/edjs/theatre-booking/internal/repository"
	"github.com/edjs/theatre-booking/internal/reservation"
	"github.com/edjs/theatre-booking/internal/utils"
)

const secret = "test-secret"

const (
	toutPublic   = 1
	publicSchool = 3
	schoolOrg    = 5
)

type app struct {
	e     *echo.Echo
	store *repository.MemoryStore
}

func newApp(t *testing.T) app {
	t.Helper()
	store := repository.NewMemoryStore()
	base := model.Session{
		SpectacleID: 1, SpectacleTitle: "Cyrano", StartsAt: time.Now().UTC().Add(72 * time.Hour),
		Venue: "Salle Molière", City: "Lyon", TotalCapacity: 100, B2CCapacity: 20,
		Status: model.SessionPublished, IndividualPriceCents: 1500, StudentPriceCents: 800,
	}
	for id, typ := range map[uint64]model.SessionType{toutPublic: model.SessionToutPublic, publicSchool: model.SessionPublicSchool} {
		s := base
		s.ID, s.Type = id, typ
		store.PutSession(s)
	}
	store.PutOrganization(model.Organization{ID: schoolOrg, Kind: model.BookingPublicSchool, Name: "Collège Voltaire", VerificationStatus: model.VerificationPending})

	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
	lc := lifecycle.NewService(store, zerolog.Nop(), lifecycle.Config{RequireVerifiedOrg: true})
	quotes := document.NewQuoteRenderer(t.TempDir(), "/v1")
	flow := reservation.NewFlow(reservation.Deps{
		Store: store, Lifecycle: lc, Drafts: reservation.NewMemoryDraftStore(time.Hour), Quotes: quotes, Log: zerolog.Nop(),
	})

	e := echo.New()
	e.Validator = handler.NewValidator()
	RegisterRoutes(e, nil)
	RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewMemoryUserRepo(), repository.NewMemoryTokenRepo(), store), secret)
	RegisterPublic(e, handler.NewSessionHandler(store, flow), nil)
	RegisterCustomer(e, handler.NewReservationHandler(flow), handler.NewBookingHandler(store, lc, quotes), secret, nil)
	RegisterAdmin(e, handler.NewAdminHandler(store, lc), secret)
	return app{e: e, store: store}
}

func token(t *testing.T, sub utils.Subject) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, 15)
	require.NoError(t, err)
	return tok.Token
}

var (
	individual = utils.Subject{UserID: 1, Role: model.RoleIndividual, ProfileType: string(model.BookingIndividual)}
	private    = utils.Subject{UserID: 4, Role: model.RoleSchoolPrivate, ProfileType: string(model.BookingPrivateSchool)}
	school     = utils.Subject{UserID: 2, Role: model.RoleSchoolPublic, ProfileType: string(model.BookingPublicSchool), OrganizationID: schoolOrg}
	admin      = utils.Subject{UserID: 90, Role: model.RoleAdmin}
	superAdmin = utils.Subject{UserID: 91, Role: model.RoleSuperAdmin}
)

func (a app) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func contactBody(extra map[string]interface{}) map[string]interface{} {
	m := map[string]interface{}{
		"contact_name": "Jeanne Moreau", "contact_email": "jeanne@example.com", "contact_phone": "0611223344",
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// wizard walks a draft to the payment step and returns its id.
func (a app) wizard(t *testing.T, tok string, sessionID uint64, details map[string]interface{}) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/reservations/drafts", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/session", tok, map[string]interface{}{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/details", tok, contactBody(details))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return id
}

func (a app) submit(t *testing.T, tok, id, method string) map[string]interface{} {
	t.Helper()
	rec := a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/payment", tok, map[string]string{"payment_method": method})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ready", decode(t, rec)["step"])
	rec = a.do(t, http.MethodPost, "/v1/reservations/drafts/"+id+"/submit", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["booking"].(map[string]interface{})
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSessionListing(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = a.do(t, http.MethodGet, "/v1/sessions?category=individual", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 1, body["count"])
	item := body["items"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, toutPublic, item["id"])
	assert.Equal(t, true, item["bookable"])
	pool := item["availability"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 20, pool["available"])

	rec = a.do(t, http.MethodGet, "/v1/sessions?category=balcony", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/sessions/1/availability?category=individual", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 20, decode(t, rec)["available"])

	rec = a.do(t, http.MethodGet, "/v1/sessions/404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndividualBookingOverHTTP(t *testing.T) {
	a := newApp(t)
	tok := token(t, individual)

	id := a.wizard(t, tok, toutPublic, map[string]interface{}{"number_of_tickets": 4})
	booking := a.submit(t, tok, id, "card")
	assert.Equal(t, "confirmed", booking["status"])
	assert.EqualValues(t, 6000, booking["total_amount_cents"])
	bookingID := uint64(booking["id"].(float64))

	rec := a.do(t, http.MethodGet, "/v1/reservations/drafts/"+id, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "submitted drafts are discarded")

	rec = a.do(t, http.MethodGet, "/v1/sessions/1/availability?category=individual", "", nil)
	assert.EqualValues(t, 16, decode(t, rec)["available"])

	rec = a.do(t, http.MethodGet, "/v1/my-bookings", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	path := "/v1/bookings/" + itoa(bookingID)
	rec = a.do(t, http.MethodGet, path, token(t, school), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other customers cannot read it")

	rec = a.do(t, http.MethodGet, path+"/tickets.pdf", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = a.do(t, http.MethodDelete, path, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec)["status"])
	assert.Equal(t, "refunded", decode(t, rec)["payment_status"])

	rec = a.do(t, http.MethodGet, "/v1/sessions/1/availability?category=individual", "", nil)
	assert.EqualValues(t, 20, decode(t, rec)["available"])
}

func TestShortfallIsReportedNotRemaining(t *testing.T) {
	a := newApp(t)
	tok := token(t, individual)

	rec := a.do(t, http.MethodPost, "/v1/reservations/drafts", tok, nil)
	id := decode(t, rec)["id"].(string)
	a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/session", tok, map[string]interface{}{"session_id": toutPublic})

	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/details", tok, contactBody(map[string]interface{}{"number_of_tickets": 23}))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["shortfall"])
	assert.Contains(t, body["error"], "3 seat(s) short")
	assert.NotContains(t, body["error"], "20")
}

func TestValidationNamesTheField(t *testing.T) {
	a := newApp(t)
	tok := token(t, individual)

	rec := a.do(t, http.MethodPost, "/v1/reservations/drafts", tok, nil)
	id := decode(t, rec)["id"].(string)

	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/details", tok, contactBody(map[string]interface{}{"number_of_tickets": 2}))
	require.Equal(t, http.StatusBadRequest, rec.Code, "details before session")
	assert.Equal(t, "step", decode(t, rec)["field"])

	a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/session", tok, map[string]interface{}{"session_id": toutPublic})
	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/details", tok, map[string]interface{}{
		"number_of_tickets": 2, "contact_name": "Jeanne", "contact_email": "not-an-email", "contact_phone": "0611",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "contact.email", decode(t, rec)["field"])

	rec = a.do(t, http.MethodPut, "/v1/reservations/drafts/"+id+"/session", tok, map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "session_id", decode(t, rec)["field"])
}

func TestRolesAreEnforced(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/v1/my-bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/admin/sessions/1/bookings", token(t, individual), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPatch, "/v1/admin/sessions/1/capacity", token(t, admin), map[string]int{"b2c_capacity": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code, "capacity edits are super admin only")
}

func TestVerificationFlowOverHTTP(t *testing.T) {
	a := newApp(t)
	tok := token(t, school)

	id := a.wizard(t, tok, publicSchool, map[string]interface{}{"students_count": 20, "accompanists_count": 2})
	booking := a.submit(t, tok, id, "free")
	assert.Equal(t, "awaiting_verification", booking["status"])
	path := "/v1/admin/bookings/" + itoa(uint64(booking["id"].(float64)))

	adminTok := token(t, admin)
	rec := a.do(t, http.MethodPost, path+"/approve", adminTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "organization is not verified yet")

	rec = a.do(t, http.MethodPost, path+"/unconfirm", adminTok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, path+"/teleport", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/admin/organizations/5/verify", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", decode(t, rec)["verification_status"])

	rec = a.do(t, http.MethodPost, path+"/approve", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/v1/admin/sessions/3/bookings", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	bookings := body["bookings"].([]interface{})
	require.Len(t, bookings, 1)
	actions := bookings[0].(map[string]interface{})["actions"].([]interface{})
	assert.Contains(t, actions, "unconfirm")
	assert.Contains(t, actions, "complete")

	superTok := token(t, superAdmin)
	rec = a.do(t, http.MethodPatch, "/v1/admin/sessions/3/capacity", superTok, map[string]int{"total_capacity": 10, "b2c_capacity": 5})
	assert.Equal(t, http.StatusConflict, rec.Code, "cannot shrink below the 22 seats held")

	rec = a.do(t, http.MethodPatch, "/v1/admin/sessions/3/capacity", superTok, map[string]int{"total_capacity": 30, "b2c_capacity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 30, decode(t, rec)["capacity"].(map[string]interface{})["total_capacity"])

	rec = a.do(t, http.MethodGet, "/v1/admin/bookings/export.csv?session_id=3", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,session_id,booking_type"))
	assert.Contains(t, lines[1], "public_school")
}

func TestOrganizationRejectionCascades(t *testing.T) {
	a := newApp(t)
	tok := token(t, school)
	id := a.wizard(t, tok, publicSchool, map[string]interface{}{"students_count": 10})
	a.submit(t, tok, id, "free")

	rec := a.do(t, http.MethodPost, "/v1/admin/organizations/5/reject", token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	rejected := body["rejected_bookings"].([]interface{})
	require.Len(t, rejected, 1)
	assert.Equal(t, "rejected", rejected[0].(map[string]interface{})["status"])

	rec = a.do(t, http.MethodGet, "/v1/sessions/3/availability?category=professional", "", nil)
	assert.EqualValues(t, 100, decode(t, rec)["available"])
}

func TestAuthOverHTTP(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"email": "Prof@School.fr", "password": "short", "role": "SCHOOL_PUBLIC", "organization_name": "Lycée Ampère",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", decode(t, rec)["field"])

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"email": "prof@school.fr", "password": "long-enough", "role": "SCHOOL_PUBLIC",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "organization_name", decode(t, rec)["field"])

	// A client-supplied organization_id is ignored: the account gets its
	// own pending organisation instead of joining the existing one.
	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"email": "Prof@School.fr", "password": "long-enough", "role": "SCHOOL_PUBLIC",
		"organization_id": schoolOrg, "organization_name": "Lycée Ampère",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "prof@school.fr", user["email"])
	assert.Equal(t, "public_school", user["profile_type"])
	newOrg := uint64(user["organization_id"].(float64))
	assert.NotEqual(t, uint64(schoolOrg), newOrg)
	org, err := a.store.GetOrganization(context.Background(), newOrg)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPublicSchool, org.Kind)
	assert.Equal(t, "Lycée Ampère", org.Name)
	assert.Equal(t, model.VerificationPending, org.VerificationStatus)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{"email": "prof@school.fr", "password": "long-enough"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{"email": "boss@edjs.fr", "password": "long-enough", "role": "SUPER_ADMIN"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.RoleIndividual, decode(t, rec)["user"].(map[string]interface{})["role"])

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "prof@school.fr", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "prof@school.fr", "password": "long-enough"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	access := body["access"].(map[string]interface{})["token"].(string)
	refresh := body["refresh"].(map[string]interface{})["token"].(string)

	// The wizard picks the profile type and organisation up from the token.
	rec = a.do(t, http.MethodPost, "/v1/reservations/drafts", access, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "public_school", decode(t, rec)["booking_type"])

	rec = a.do(t, http.MethodGet, "/v1/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode(t, rec)["refresh"].(map[string]interface{})["token"].(string)

	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "old refresh token was revoked")

	rec = a.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/auth/refresh-access", "", map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func itoa(n uint64) string { return strconv.FormatUint(n, 10) }

func TestQuoteIsServedToItsOwnerOnly(t *testing.T) {
	a := newApp(t)
	a.store.PutSession(model.Session{
		ID: 2, SpectacleID: 1, SpectacleTitle: "Cyrano", StartsAt: time.Now().UTC().Add(72 * time.Hour),
		Venue: "Salle Molière", City: "Lyon", TotalCapacity: 100, Type: model.SessionPrivateSchool,
		Status: model.SessionPublished, StudentPriceCents: 800,
	})
	tok := token(t, private)

	id := a.wizard(t, tok, 2, map[string]interface{}{"students_count": 20, "accompanists_count": 2})
	booking := a.submit(t, tok, id, "transfer")
	bookingID := uint64(booking["id"].(float64))
	path := "/v1/bookings/" + itoa(bookingID) + "/quote.pdf"
	assert.Equal(t, path, booking["quote_url"])

	rec := a.do(t, http.MethodGet, path, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = a.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodGet, path, token(t, individual), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "someone else's quote")
	rec = a.do(t, http.MethodGet, path, token(t, admin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/documents/quotes/devis-"+booking["payment_reference"].(string)+".pdf", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no static route to the files")

	tok = token(t, individual)
	id = a.wizard(t, tok, toutPublic, map[string]interface{}{"number_of_tickets": 2})
	booking = a.submit(t, tok, id, "card")
	rec = a.do(t, http.MethodGet, "/v1/bookings/"+itoa(uint64(booking["id"].(float64)))+"/quote.pdf", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "individual bookings have no quote")
}
