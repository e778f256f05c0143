// Package reservation runs the booking wizard: profile, session, details,
// payment, then submission.  Wizard state lives in an explicit Draft that
// is stored between requests; nothing is written to the booking tables
// until Submit.
package reservation

import (
	"strings"

	"github.com/edjs/theatre-booking/internal/model"
)

// StudentsPerGroup and AccompanistsPerGroup set the chaperone ratio of
// professional bookings: three adults for every started group of thirty
// children.
const (
	StudentsPerGroup     = 30
	AccompanistsPerGroup = 3
)

// MaxAccompanists returns the most accompanists allowed for students
// children.
func MaxAccompanists(students int) int {
	if students <= 0 {
		return 0
	}
	groups := (students + StudentsPerGroup - 1) / StudentsPerGroup
	return groups * AccompanistsPerGroup
}

// ResolveType decides which booking type, and therefore which capacity
// pool, a wizard run uses.  An explicit choice from navigation wins over
// the profile's stored type, which wins over individual.  An explicit
// choice may name a booking type or a category; the professional
// category is ambiguous and needs a professional profile type to settle
// on a concrete type.
func ResolveType(explicit string, profile model.BookingType) (model.BookingType, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if t, ok := model.ParseBookingType(explicit); ok {
			return t, nil
		}
		c, ok := model.ParseCategory(explicit)
		if !ok {
			return "", model.Invalid("category", "unknown category "+explicit)
		}
		switch c {
		case model.CategoryIndividual:
			return model.BookingIndividual, nil
		case model.CategoryPartner:
			return model.BookingPartner, nil
		}
		if profile.Professional() {
			return profile, nil
		}
		return "", model.Invalid("category", "choose private_school, public_school or association")
	}
	if _, ok := model.ParseBookingType(string(profile)); ok {
		return profile, nil
	}
	return model.BookingIndividual, nil
}

// ResolveCategory is ResolveType reduced to the capacity pool.
func ResolveCategory(explicit string, profile model.BookingType) (model.Category, error) {
	t, err := ResolveType(explicit, profile)
	if err != nil {
		return "", err
	}
	return t.Category(), nil
}

// needsOrganization reports whether bookings of type t must name the
// organisation they are made for.
func needsOrganization(t model.BookingType) bool {
	return t.RequiresVerification() || t == model.BookingPartner
}

// free reports whether bookings of type t are not charged.
func free(t model.BookingType) bool {
	return t == model.BookingPublicSchool || t == model.BookingAssociation
}

// Price returns the amount due in cents for seats of type t on s.
// Individuals and partners pay per ticket, private schools per student,
// accompanists travel free, public schools and associations pay nothing.
func Price(s model.Session, t model.BookingType, seats model.Seats) uint32 {
	if free(t) {
		return 0
	}
	switch v := seats.(type) {
	case model.IndividualSeats:
		return uint32(v.Tickets) * s.IndividualPriceCents
	case model.ProfessionalSeats:
		return uint32(v.Students) * s.StudentPriceCents
	}
	return 0
}
