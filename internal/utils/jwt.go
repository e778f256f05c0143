// Package utils provides helpers for token creation and password hashing.
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken is a long‑lived token used to obtain new access tokens.  Only
// a SHA‑256 hash of Raw is ever stored.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// Subject describes whom an access token is issued to.  ProfileType and
// OrganizationID travel in the token so that the reservation wizard can
// resolve a booking category without a users lookup.
type Subject struct {
	UserID         uint64
	Role           string
	ProfileType    string
	OrganizationID uint64
}

// NewAccessToken builds and signs an HS256 JWT for sub, valid for ttlMin
// minutes.  Besides the standard sub, exp and iat claims it carries role,
// and profile_type and org_id when set.
func NewAccessToken(secret string, sub Subject, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  sub.UserID,
		"role": sub.Role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if sub.ProfileType != "" {
		claims["profile_type"] = sub.ProfileType
	}
	if sub.OrganizationID != 0 {
		claims["org_id"] = sub.OrganizationID
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken returns a cryptographically secure random token valid
// for ttlDays days.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the hex SHA‑256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
