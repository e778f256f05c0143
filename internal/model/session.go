package model

import "time"

// SessionType is the audience a performance is programmed for.
type SessionType string

const (
	SessionPrivateSchool SessionType = "private_school"
	SessionPublicSchool  SessionType = "public_school"
	SessionToutPublic    SessionType = "tout_public"
	SessionAssociation   SessionType = "association"
)

// SessionStatus is the publication state of a session.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionPublished SessionStatus = "published"
	SessionClosed    SessionStatus = "closed"
)

// Session represents one scheduled performance of a spectacle.  Each
// session carries three independent capacity ceilings, one per audience
// category (see Category.Ceiling).
//
// Fields:
//  ID                   – primary key identifier.
//  SpectacleID          – spectacle being performed.
//  SpectacleTitle       – denormalised title for listings and documents.
//  StartsAt             – date and time of the performance (UTC).
//  Venue, City          – where the performance takes place.
//  TotalCapacity        – ceiling for professional bookings.
//  B2CCapacity          – ceiling for individual (tout-public) bookings.
//  PartnerQuota         – ceiling for partner bookings.
//  Type                 – audience the session is programmed for.
//  Status               – draft, published or closed.
//  IndividualPriceCents – price of one individual ticket.
//  StudentPriceCents    – price per student for private schools.
type Session struct {
	ID                   uint64        // sessions.id
	SpectacleID          uint64        // sessions.spectacle_id
	SpectacleTitle       string        // spectacles.title
	StartsAt             time.Time     // sessions.starts_at
	Venue                string        // sessions.venue
	City                 string        // sessions.city
	TotalCapacity        int           // sessions.total_capacity
	B2CCapacity          int           // sessions.b2c_capacity
	PartnerQuota         int           // sessions.partner_quota
	Type                 SessionType   // sessions.session_type
	Status               SessionStatus // sessions.status
	IndividualPriceCents uint32        // sessions.individual_price_cents
	StudentPriceCents    uint32        // sessions.student_price_cents
	CreatedAt            time.Time     // sessions.created_at
	UpdatedAt            time.Time     // sessions.updated_at
}

// Bookable reports whether new bookings may be submitted for the session.
func (s Session) Bookable(now time.Time) bool {
	return s.Status == SessionPublished && s.StartsAt.After(now)
}

// Serves reports whether a booking of type t may target this session.
// Partners are admitted to any session that has a partner quota; every
// other booking type needs the matching session type.
func (s Session) Serves(t BookingType) bool {
	switch t {
	case BookingIndividual:
		return s.Type == SessionToutPublic
	case BookingPartner:
		return s.PartnerQuota > 0
	case BookingPrivateSchool:
		return s.Type == SessionPrivateSchool
	case BookingPublicSchool:
		return s.Type == SessionPublicSchool
	case BookingAssociation:
		return s.Type == SessionAssociation
	}
	return false
}

// CapacityUpdate carries new ceilings for a session.  Nil fields are left
// unchanged.
type CapacityUpdate struct {
	TotalCapacity *int
	B2CCapacity   *int
	PartnerQuota  *int
}

// Apply returns a copy of s with the update applied.
func (u CapacityUpdate) Apply(s Session) Session {
	if u.TotalCapacity != nil {
		s.TotalCapacity = *u.TotalCapacity
	}
	if u.B2CCapacity != nil {
		s.B2CCapacity = *u.B2CCapacity
	}
	if u.PartnerQuota != nil {
		s.PartnerQuota = *u.PartnerQuota
	}
	return s
}

// Validate checks the structural capacity invariants of a session.
func (s Session) Validate() error {
	if s.TotalCapacity < 0 || s.B2CCapacity < 0 || s.PartnerQuota < 0 {
		return &ValidationError{Field: "capacity", Message: "capacities must not be negative"}
	}
	if s.B2CCapacity > s.TotalCapacity {
		return &ValidationError{Field: "b2c_capacity", Message: "b2c_capacity must not exceed total_capacity"}
	}
	if s.PartnerQuota > s.TotalCapacity {
		return &ValidationError{Field: "partner_quota", Message: "partner_quota must not exceed total_capacity"}
	}
	return nil
}
