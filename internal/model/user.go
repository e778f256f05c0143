package model

import "time"

// Role names carried in the users table and in the JWT role claim.
const (
	RoleIndividual    = "INDIVIDUAL"
	RoleSchoolPrivate = "SCHOOL_PRIVATE"
	RoleSchoolPublic  = "SCHOOL_PUBLIC"
	RoleAssociation   = "ASSOCIATION"
	RolePartner       = "PARTNER"
	RoleAdmin         = "ADMIN"
	RoleSuperAdmin    = "SUPER_ADMIN"
)

// CustomerRoles are the roles allowed to run the reservation wizard.
var CustomerRoles = []string{RoleIndividual, RoleSchoolPrivate, RoleSchoolPublic, RoleAssociation, RolePartner}

// AdminRoles are the roles allowed on the booking console.
var AdminRoles = []string{RoleAdmin, RoleSuperAdmin}

// ProfileTypeForRole returns the booking type a role books as by default.
// Admins have no stored profile type.
func ProfileTypeForRole(role string) (BookingType, bool) {
	switch role {
	case RoleIndividual:
		return BookingIndividual, true
	case RoleSchoolPrivate:
		return BookingPrivateSchool, true
	case RoleSchoolPublic:
		return BookingPublicSchool, true
	case RoleAssociation:
		return BookingAssociation, true
	case RolePartner:
		return BookingPartner, true
	}
	return "", false
}

// User represents an application user record as stored in the
// `users` table.  The stored profile type and organisation feed the
// category resolution of the reservation wizard.
//
// Fields:
//  ID             – primary key identifier of the user.
//  Email          – unique email address.
//  PasswordHash   – bcrypt hashed password.
//  Role           – one of the Role* constants.
//  ProfileType    – booking type stored on the profile (may be empty).
//  OrganizationID – organisation the user books for (nullable).
//  IsActive       – whether the account is active.
type User struct {
	ID             uint64      // users.id
	Email          string      // users.email
	PasswordHash   string      // users.password_hash
	FullName       string      // users.full_name
	Phone          string      // users.phone
	Role           string      // users.role
	ProfileType    BookingType // users.profile_type
	OrganizationID *uint64     // users.organization_id (nullable)
	IsActive       bool        // users.is_active
	CreatedAt      time.Time   // users.created_at
	UpdatedAt      time.Time   // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The
// plain token is not stored; only its SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
