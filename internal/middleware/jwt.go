package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	KeyUserID      = "user_id"
	KeyRole        = "role"
	KeyProfileType = "profile_type"
	KeyOrgID       = "org_id"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's subject, role, profile type and organisation
// claims into the request context. Handlers read them back through
// CurrentIdentity.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC signed tokens are accepted.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			// Type assertions are left to CurrentIdentity.
			c.Set(KeyUserID, claims["sub"])
			c.Set(KeyRole, claims["role"])
			c.Set(KeyProfileType, claims["profile_type"])
			c.Set(KeyOrgID, claims["org_id"])
			return next(c)
		}
	}
}
