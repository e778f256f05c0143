package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/edjs/theatre-booking/internal/model"
)

// SeedDemo fills an empty memory store with a small season, three
// organisations and one account per role, all sharing password.  It backs
// STORE_MODE=memory.
func SeedDemo(ctx context.Context, m *MemoryStore, users *MemoryUserRepo, password string, cost int) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	at := func(days, hour int) time.Time { return day.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour) }

	sessions := []model.Session{
		{ID: 1, SpectacleID: 1, SpectacleTitle: "Le Petit Prince", StartsAt: at(14, 19), Venue: "Théâtre des Célestins", City: "Lyon",
			TotalCapacity: 300, B2CCapacity: 120, PartnerQuota: 20, Type: model.SessionToutPublic, IndividualPriceCents: 1800},
		{ID: 2, SpectacleID: 1, SpectacleTitle: "Le Petit Prince", StartsAt: at(15, 10), Venue: "Théâtre des Célestins", City: "Lyon",
			TotalCapacity: 300, B2CCapacity: 0, Type: model.SessionPrivateSchool, StudentPriceCents: 900},
		{ID: 3, SpectacleID: 2, SpectacleTitle: "Les Fourberies de Scapin", StartsAt: at(21, 14), Venue: "Salle Molière", City: "Villeurbanne",
			TotalCapacity: 180, Type: model.SessionPublicSchool},
		{ID: 4, SpectacleID: 2, SpectacleTitle: "Les Fourberies de Scapin", StartsAt: at(22, 15), Venue: "Salle Molière", City: "Villeurbanne",
			TotalCapacity: 180, Type: model.SessionAssociation},
	}
	for _, s := range sessions {
		s.Status = model.SessionPublished
		s.CreatedAt, s.UpdatedAt = day, day
		if err := s.Validate(); err != nil {
			return fmt.Errorf("seed session %d: %w", s.ID, err)
		}
		m.PutSession(s)
	}

	orgs := []model.Organization{
		{ID: 1, Kind: model.BookingPrivateSchool, Name: "Institution Saint-Joseph", VerificationStatus: model.VerificationVerified},
		{ID: 2, Kind: model.BookingPublicSchool, Name: "École Jean Macé", VerificationStatus: model.VerificationPending, MaxFreeTickets: 60},
		{ID: 3, Kind: model.BookingPartner, Name: "Comité d'entreprise Rhône", VerificationStatus: model.VerificationVerified},
	}
	for _, o := range orgs {
		o.CreatedAt = day
		if o.VerificationStatus == model.VerificationVerified {
			v := day
			o.VerifiedAt = &v
		}
		m.PutOrganization(o)
	}

	org := func(id uint64) *uint64 { return &id }
	accounts := []NewUser{
		{Email: "public@edjs.fr", FullName: "Jeanne Moreau", Role: model.RoleIndividual},
		{Email: "prive@edjs.fr", FullName: "Paul Martin", Role: model.RoleSchoolPrivate, OrganizationID: org(1)},
		{Email: "ecole@edjs.fr", FullName: "Claire Dubois", Role: model.RoleSchoolPublic, OrganizationID: org(2)},
		{Email: "partenaire@edjs.fr", FullName: "Marc Lefèvre", Role: model.RolePartner, OrganizationID: org(3)},
		{Email: "admin@edjs.fr", FullName: "Billetterie", Role: model.RoleAdmin},
		{Email: "direction@edjs.fr", FullName: "Direction", Role: model.RoleSuperAdmin},
	}
	for _, a := range accounts {
		a.Password = password
		if _, err := users.Create(ctx, a, cost); err != nil {
			return fmt.Errorf("seed user %s: %w", a.Email, err)
		}
	}
	return nil
}
