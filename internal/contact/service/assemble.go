package service

import (
	"sort"

	"reconciler/internal/contact/models"
	pkgstrings "reconciler/pkg/platform/strings"
)

// assemble builds the consolidated view of a cluster. The primary's email and
// phone lead their lists; secondaries follow in id order, deduplicated.
func assemble(primary *models.Contact, cluster []*models.Contact) *models.ConsolidatedContact {
	members := make([]*models.Contact, 0, len(cluster))
	for _, c := range cluster {
		if c.ID != primary.ID && c.IsLive() {
			members = append(members, c)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	emails := make([]string, 0, len(members)+1)
	phones := make([]string, 0, len(members)+1)
	secondaryIDs := make([]models.ContactID, 0, len(members))

	emails = append(emails, primary.Email)
	phones = append(phones, primary.Phone)
	for _, c := range members {
		secondaryIDs = append(secondaryIDs, c.ID)
		emails = append(emails, c.Email)
		phones = append(phones, c.Phone)
	}

	return &models.ConsolidatedContact{
		PrimaryID:    primary.ID,
		Emails:       pkgstrings.Dedupe(emails),
		PhoneNumbers: pkgstrings.Dedupe(phones),
		SecondaryIDs: secondaryIDs,
	}
}
