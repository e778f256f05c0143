package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edjs/theatre-booking/internal/model"
)

func TestMaxAccompanists(t *testing.T) {
	cases := map[int]int{0: 0, 1: 3, 29: 3, 30: 3, 31: 6, 60: 6, 61: 9, 90: 9}
	for students, want := range cases {
		assert.Equal(t, want, MaxAccompanists(students), "students=%d", students)
	}
}

func TestResolveTypePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		profile  model.BookingType
		want     model.BookingType
		wantErr  bool
	}{
		{"explicit type beats profile", "association", model.BookingPublicSchool, model.BookingAssociation, false},
		{"explicit category beats profile", "individual", model.BookingPartner, model.BookingIndividual, false},
		{"explicit partner", "partner", "", model.BookingPartner, false},
		{"tout-public alias", "tout-public", "", model.BookingIndividual, false},
		{"professional settled by profile", "professional", model.BookingPrivateSchool, model.BookingPrivateSchool, false},
		{"professional without professional profile", "professional", model.BookingIndividual, "", true},
		{"profile when no explicit choice", "", model.BookingPublicSchool, model.BookingPublicSchool, false},
		{"default individual", "", "", model.BookingIndividual, false},
		{"unknown profile falls back", "", model.BookingType("vip"), model.BookingIndividual, false},
		{"unknown explicit", "vip", model.BookingPartner, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveType(tt.explicit, tt.profile)
			if tt.wantErr {
				var ve *model.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCategory(t *testing.T) {
	c, err := ResolveCategory("", model.BookingAssociation)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryProfessional, c)

	c, err = ResolveCategory("partner", model.BookingAssociation)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryPartner, c)
}

func TestPrice(t *testing.T) {
	s := model.Session{IndividualPriceCents: 1200, StudentPriceCents: 700}
	assert.Equal(t, uint32(3600), Price(s, model.BookingIndividual, model.IndividualSeats{Tickets: 3}))
	assert.Equal(t, uint32(14000), Price(s, model.BookingPrivateSchool, model.ProfessionalSeats{Students: 20, Accompanists: 3}))
	assert.Equal(t, uint32(0), Price(s, model.BookingPublicSchool, model.ProfessionalSeats{Students: 20, Accompanists: 3}))
	assert.Equal(t, uint32(0), Price(s, model.BookingAssociation, model.ProfessionalSeats{Students: 5}))
}
