package handler

import (
	"time"

	"github.com/edjs/theatre-booking/internal/ledger"
	"github.com/edjs/theatre-booking/internal/model"
)

type sessionView struct {
	ID                   uint64                `json:"id"`
	SpectacleID          uint64                `json:"spectacle_id"`
	SpectacleTitle       string                `json:"spectacle_title"`
	StartsAt             time.Time             `json:"starts_at"`
	Venue                string                `json:"venue"`
	City                 string                `json:"city"`
	Type                 model.SessionType     `json:"session_type"`
	Status               model.SessionStatus   `json:"status"`
	IndividualPriceCents uint32                `json:"individual_price_cents"`
	StudentPriceCents    uint32                `json:"student_price_cents"`
	Availability         []ledger.Availability `json:"availability,omitempty"`
	Bookable             *bool                 `json:"bookable,omitempty"`
}

func toSessionView(s model.Session, avail ...ledger.Availability) sessionView {
	return sessionView{
		ID: s.ID, SpectacleID: s.SpectacleID, SpectacleTitle: s.SpectacleTitle, StartsAt: s.StartsAt,
		Venue: s.Venue, City: s.City, Type: s.Type, Status: s.Status,
		IndividualPriceCents: s.IndividualPriceCents, StudentPriceCents: s.StudentPriceCents,
		Availability: avail,
	}
}

type capacityView struct {
	TotalCapacity int `json:"total_capacity"`
	B2CCapacity   int `json:"b2c_capacity"`
	PartnerQuota  int `json:"partner_quota"`
}

type contactView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type bookingView struct {
	ID                uint64              `json:"id"`
	SessionID         uint64              `json:"session_id"`
	UserID            uint64              `json:"user_id,omitempty"`
	OrganizationID    *uint64             `json:"organization_id,omitempty"`
	Type              model.BookingType   `json:"booking_type"`
	Category          model.Category      `json:"category"`
	NumberOfTickets   int                 `json:"number_of_tickets,omitempty"`
	StudentsCount     int                 `json:"students_count,omitempty"`
	AccompanistsCount int                 `json:"accompanists_count,omitempty"`
	Seats             int                 `json:"seats"`
	Status            model.Status        `json:"status"`
	PaymentStatus     model.PaymentStatus `json:"payment_status"`
	PaymentMethod     model.PaymentMethod `json:"payment_method,omitempty"`
	TotalAmountCents  uint32              `json:"total_amount_cents"`
	PaymentReference  string              `json:"payment_reference"`
	Contact           contactView         `json:"contact"`
	QuoteURL          *string             `json:"quote_url,omitempty"`
	ConfirmedAt       *time.Time          `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

func toBookingView(b model.Booking) bookingView {
	v := bookingView{
		ID: b.ID, SessionID: b.SessionID, UserID: b.UserID, OrganizationID: b.OrganizationID,
		Type: b.Type, Category: b.Category(), Seats: b.SeatCount(),
		Status: b.Status, PaymentStatus: b.PaymentStatus, PaymentMethod: b.PaymentMethod,
		TotalAmountCents: b.TotalAmountCents, PaymentReference: b.PaymentRef,
		Contact:  contactView{Name: b.Contact.Name, Email: b.Contact.Email, Phone: b.Contact.Phone},
		QuoteURL: b.QuoteURL, ConfirmedAt: b.ConfirmedAt, CreatedAt: b.CreatedAt,
	}
	switch s := b.Seats.(type) {
	case model.IndividualSeats:
		v.NumberOfTickets = s.Tickets
	case model.ProfessionalSeats:
		v.StudentsCount, v.AccompanistsCount = s.Students, s.Accompanists
	}
	return v
}

func toBookingViews(bs []model.Booking) []bookingView {
	out := make([]bookingView, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingView(b))
	}
	return out
}

type ticketView struct {
	ID         uint64             `json:"id"`
	QRCode     string             `json:"qr_code"`
	SeatNumber *string            `json:"seat_number,omitempty"`
	Status     model.TicketStatus `json:"status"`
	HolderName string             `json:"holder_name"`
}

func toTicketViews(ts []model.Ticket) []ticketView {
	out := make([]ticketView, 0, len(ts))
	for _, t := range ts {
		out = append(out, ticketView{ID: t.ID, QRCode: t.QRCode, SeatNumber: t.SeatNumber, Status: t.Status, HolderName: t.HolderName})
	}
	return out
}

type organizationView struct {
	ID                 uint64                   `json:"id"`
	Kind               model.BookingType        `json:"kind"`
	Name               string                   `json:"name"`
	VerificationStatus model.VerificationStatus `json:"verification_status"`
	MaxFreeTickets     int                      `json:"max_free_tickets"`
	VerifiedAt         *time.Time               `json:"verified_at,omitempty"`
}

func toOrganizationView(o model.Organization) organizationView {
	return organizationView{
		ID: o.ID, Kind: o.Kind, Name: o.Name, VerificationStatus: o.VerificationStatus,
		MaxFreeTickets: o.MaxFreeTickets, VerifiedAt: o.VerifiedAt,
	}
}
