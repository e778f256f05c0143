package model

import "time"

// VerificationStatus is the legitimacy check state of an organisation.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Organization groups the bookings of a school, association or partner.
// MaxFreeTickets caps the seats of a single free (public school or
// association) booking; zero means no cap.
type Organization struct {
	ID                 uint64             // organizations.id
	Kind               BookingType        // organizations.kind
	Name               string             // organizations.name
	VerificationStatus VerificationStatus // organizations.verification_status
	MaxFreeTickets     int                // organizations.max_free_tickets
	VerifiedAt         *time.Time         // organizations.verified_at (nullable)
	CreatedAt          time.Time          // organizations.created_at
}

// Verified reports whether the organisation passed verification.
func (o Organization) Verified() bool { return o.VerificationStatus == VerificationVerified }
