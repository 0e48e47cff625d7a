package service

import (
	"context"
	"fmt"
	"time"

	"reconciler/internal/contact/models"
	dErrors "reconciler/pkg/domain-errors"
)

// mergeClusters demotes every losing primary under survivor and moves the
// loser's secondaries along with it. Each loser is fully re-linked before the
// next one is touched; the surrounding transaction makes the whole set atomic.
func mergeClusters(ctx context.Context, store Store, survivor *models.Contact, losers []*models.Contact, now time.Time) ([]models.MergeRecord, error) {
	if len(losers) == 0 {
		return nil, nil
	}

	records := make([]models.MergeRecord, 0, len(losers))
	for _, loser := range losers {
		if err := loser.DemoteTo(survivor, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeIntegrity,
				fmt.Sprintf("cannot demote contact %d under %d", loser.ID, survivor.ID))
		}
		if err := store.DemoteToSecondary(ctx, loser.ID, survivor.ID, now); err != nil {
			return nil, fmt.Errorf("demote contact %d: %w", loser.ID, err)
		}
		repointed, err := store.RepointSecondaries(ctx, loser.ID, survivor.ID, now)
		if err != nil {
			return nil, fmt.Errorf("repoint secondaries of %d: %w", loser.ID, err)
		}
		records = append(records, models.MergeRecord{
			SurvivorID: survivor.ID,
			DemotedID:  loser.ID,
			Repointed:  repointed,
		})
	}
	return records, nil
}
