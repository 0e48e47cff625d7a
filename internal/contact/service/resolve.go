package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"reconciler/internal/contact/models"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

// resolvePrimary maps the matched contacts to the primaries of their clusters
// and returns the eldest as survivor. The remaining primaries, eldest first,
// are the clusters that must be merged into it.
func resolvePrimary(ctx context.Context, store Store, matched []*models.Contact) (*models.Contact, []*models.Contact, error) {
	byID := make(map[models.ContactID]*models.Contact, len(matched))
	for _, c := range matched {
		byID[c.ID] = c
	}
	ids := make([]models.ContactID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	candidates := make(map[models.ContactID]*models.Contact)
	for _, id := range ids {
		c := byID[id]
		if c.IsPrimary() {
			candidates[c.ID] = c
			continue
		}

		primaryID, _ := c.Link.PrimaryID()
		if _, seen := candidates[primaryID]; seen {
			continue
		}
		if p, ok := byID[primaryID]; ok && p.IsPrimary() {
			candidates[p.ID] = p
			continue
		}

		primary, err := store.FindLiveByID(ctx, primaryID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, nil, dErrors.New(dErrors.CodeIntegrity,
					fmt.Sprintf("contact %d links to missing primary %d", c.ID, primaryID))
			}
			return nil, nil, fmt.Errorf("load primary %d: %w", primaryID, err)
		}
		if !primary.IsPrimary() {
			return nil, nil, dErrors.New(dErrors.CodeIntegrity,
				fmt.Sprintf("contact %d links to secondary %d", c.ID, primaryID))
		}
		candidates[primary.ID] = primary
	}

	if len(candidates) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeIntegrity, "matched contacts have no resolvable primary")
	}

	primaries := make([]*models.Contact, 0, len(candidates))
	for _, p := range candidates {
		primaries = append(primaries, p)
	}
	models.SortBySeniority(primaries)

	return primaries[0], primaries[1:], nil
}
