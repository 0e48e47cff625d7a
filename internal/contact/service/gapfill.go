package service

import (
	"context"
	"fmt"
	"time"

	"reconciler/internal/contact/models"
)

// needsSecondary reports whether ids carries a combination not yet recorded
// in the cluster:
//
//	email and phone: no contact has exactly this pair
//	email only:      no contact has this email
//	phone only:      no contact has this phone
//	neither:         never
func needsSecondary(cluster []*models.Contact, ids models.Identifiers) bool {
	if ids.Empty() {
		return false
	}
	for _, c := range cluster {
		if c.Has(ids) {
			return false
		}
	}
	return true
}

// fillGap records ids as a new secondary of primary when the cluster does not
// already hold them. It returns nil when no write was needed.
func fillGap(ctx context.Context, store Store, primary *models.Contact, cluster []*models.Contact, ids models.Identifiers, now time.Time) (*models.Contact, error) {
	if !needsSecondary(cluster, ids) {
		return nil, nil
	}
	secondary, err := models.NewSecondary(ids, primary, now)
	if err != nil {
		return nil, err
	}
	if err := store.Insert(ctx, secondary); err != nil {
		return nil, fmt.Errorf("insert secondary under %d: %w", primary.ID, err)
	}
	return secondary, nil
}
