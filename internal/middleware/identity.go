package middleware

// identity.go turns the claims stored by JWTAuth back into typed values.
// JSON numbers decode as float64, and tokens minted by other tools may
// carry the subject as a string, so every numeric claim goes through
// asUint64.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Identity is the authenticated requester.
type Identity struct {
	UserID         uint64
	Role           string
	ProfileType    string
	OrganizationID *uint64
}

// CurrentIdentity returns the requester of c. The second result is false
// when no valid subject was stored.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	uid, ok := asUint64(c.Get(KeyUserID))
	if !ok || uid == 0 {
		return Identity{}, false
	}
	id := Identity{UserID: uid}
	id.Role, _ = c.Get(KeyRole).(string)
	id.ProfileType, _ = c.Get(KeyProfileType).(string)
	if org, ok := asUint64(c.Get(KeyOrgID)); ok && org != 0 {
		id.OrganizationID = &org
	}
	return id, true
}

func asUint64(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int:
		return uint64(t), t >= 0
	case int64:
		return uint64(t), t >= 0
	case uint64:
		return t, true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// currentUserID is the rate limiter's view of the requester.
func currentUserID(c echo.Context) string {
	if uid, ok := asUint64(c.Get(KeyUserID)); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
