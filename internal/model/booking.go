package model

import (
	"strings"
	"time"
)

// Category is the capacity pool a booking draws from.
type Category string

const (
	CategoryIndividual   Category = "individual"
	CategoryProfessional Category = "professional"
	CategoryPartner      Category = "partner"
)

// ParseCategory normalises s into a Category.  The second result is false
// when s names no known category.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryIndividual:
		return CategoryIndividual, true
	case CategoryProfessional:
		return CategoryProfessional, true
	case CategoryPartner:
		return CategoryPartner, true
	}
	return "", false
}

// Ceiling returns the number of seats the category may consume on s.
// Schools and associations share the general pool; individuals and
// partners have their own carve-outs.
func (c Category) Ceiling(s Session) int {
	switch c {
	case CategoryIndividual:
		return s.B2CCapacity
	case CategoryProfessional:
		return s.TotalCapacity
	case CategoryPartner:
		return s.PartnerQuota
	}
	return 0
}

// BookingType identifies who is booking.  Several types share one
// Category.
type BookingType string

const (
	BookingIndividual    BookingType = "individual"
	BookingPrivateSchool BookingType = "private_school"
	BookingPublicSchool  BookingType = "public_school"
	BookingAssociation   BookingType = "association"
	BookingPartner       BookingType = "partner"
)

// ParseBookingType normalises s into a BookingType.  Category names are
// accepted as aliases ("professional" is not, since it is ambiguous).
func ParseBookingType(s string) (BookingType, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	switch BookingType(v) {
	case BookingIndividual, BookingPrivateSchool, BookingPublicSchool, BookingAssociation, BookingPartner:
		return BookingType(v), true
	}
	if v == "tout_public" || v == "b2c" {
		return BookingIndividual, true
	}
	return "", false
}

// Category maps a booking type onto its capacity pool.
func (t BookingType) Category() Category {
	switch t {
	case BookingPrivateSchool, BookingPublicSchool, BookingAssociation:
		return CategoryProfessional
	case BookingPartner:
		return CategoryPartner
	}
	return CategoryIndividual
}

// Professional reports whether bookings of this type count students and
// accompanists rather than plain tickets.
func (t BookingType) Professional() bool {
	return t.Category() == CategoryProfessional
}

// RequiresVerification reports whether the requesting organisation must be
// verified before the booking can be approved.
func (t BookingType) RequiresVerification() bool {
	return t == BookingPublicSchool || t == BookingAssociation
}

// DefersTickets reports whether tickets are issued only once the booking is
// confirmed (private schools wait for their quote to be accepted).
func (t BookingType) DefersTickets() bool {
	return t == BookingPrivateSchool
}

// InitialStatus is the state a freshly submitted booking starts in.
func (t BookingType) InitialStatus() Status {
	if t.RequiresVerification() {
		return StatusAwaitingVerification
	}
	return StatusPending
}

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending              Status = "pending"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusConfirmed            Status = "confirmed"
	StatusRejected             Status = "rejected"
	StatusCancelled            Status = "cancelled"
	StatusCompleted            Status = "completed"
)

// StatusApproved is accepted on input and stored as confirmed.
const StatusApproved Status = "approved"

// ParseStatus normalises s, folding approved onto confirmed.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusApproved:
		return StatusConfirmed, true
	case StatusPending, StatusAwaitingVerification, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// ConsumingStatuses lists the statuses whose seats count against capacity.
var ConsumingStatuses = []Status{StatusConfirmed, StatusAwaitingVerification}

// ConsumesCapacity reports whether a booking in this status holds seats.
func (s Status) ConsumesCapacity() bool {
	return s == StatusConfirmed || s == StatusApproved || s == StatusAwaitingVerification
}

// Terminal reports whether no further transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

// PaymentStatus tracks the (simulated or manual) payment of a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentMethod is how the requester intends to pay.
type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentOnSite   PaymentMethod = "on_site"
	PaymentFree     PaymentMethod = "free"
)

// ParsePaymentMethod normalises s into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentCard, PaymentTransfer, PaymentOnSite, PaymentFree:
		return m, true
	}
	return "", false
}

// Seats is the category-discriminated seat request of a booking.  It is
// either IndividualSeats or ProfessionalSeats.
type Seats interface {
	// Count is the number of seats the request occupies.
	Count() int
	seats()
}

// IndividualSeats is a plain ticket count.
type IndividualSeats struct {
	Tickets int
}

func (s IndividualSeats) Count() int { return s.Tickets }
func (IndividualSeats) seats()       {}

// ProfessionalSeats counts children and their adult accompanists; both
// occupy a seat.
type ProfessionalSeats struct {
	Students     int
	Accompanists int
}

func (s ProfessionalSeats) Count() int { return s.Students + s.Accompanists }
func (ProfessionalSeats) seats()       {}

// SeatCount returns the number of seats of s, treating nil as zero.
func SeatCount(s Seats) int {
	if s == nil {
		return 0
	}
	return s.Count()
}

// Contact is the person the booking is made for.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Booking is one reservation request against one session.
//
// Fields:
//  ID               – primary key identifier.
//  SessionID        – session being booked.
//  UserID           – requester (zero for guest checkouts).
//  OrganizationID   – requesting organisation for professional and
//                     partner bookings, nil otherwise.
//  Type             – booking type; its Category selects the pool.
//  Seats            – seat request, see Seats.
//  Status           – lifecycle state.
//  PaymentStatus    – payment state.
//  TotalAmountCents – amount due in cents.
//  PaymentRef       – payment reference shown on transfers and invoices.
//  QuoteURL         – generated quote document (private schools).
//  ConfirmedAt/By   – set while the booking is confirmed.
type Booking struct {
	ID               uint64        // bookings.id
	SessionID        uint64        // bookings.session_id
	UserID           uint64        // bookings.user_id
	OrganizationID   *uint64       // bookings.organization_id (nullable)
	Type             BookingType   // bookings.booking_type
	Seats            Seats         // bookings.number_of_tickets | students_count + accompanists_count
	Status           Status        // bookings.status
	PaymentStatus    PaymentStatus // bookings.payment_status
	PaymentMethod    PaymentMethod // bookings.payment_method
	TotalAmountCents uint32        // bookings.total_amount_cents
	PaymentRef       string        // bookings.payment_reference
	Contact          Contact       // bookings.contact_*
	QuoteURL         *string       // bookings.quote_url (nullable)
	ConfirmedAt      *time.Time    // bookings.confirmed_at (nullable)
	ConfirmedBy      *uint64       // bookings.confirmed_by (nullable)
	CreatedAt        time.Time     // bookings.created_at
	UpdatedAt        time.Time     // bookings.updated_at
}

// Category is the capacity pool of the booking.
func (b Booking) Category() Category { return b.Type.Category() }

// SeatCount is the number of seats the booking occupies.
func (b Booking) SeatCount() int { return SeatCount(b.Seats) }
