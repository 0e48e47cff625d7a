package service

import (
	"context"
	"fmt"

	"reconciler/internal/contact/models"
)

// match returns every live contact sharing the supplied email or phone.
// Nothing is queried when neither identifier is present.
func match(ctx context.Context, store Store, ids models.Identifiers) ([]*models.Contact, error) {
	if ids.Empty() {
		return nil, nil
	}
	matched, err := store.FindLive(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("match contacts: %w", err)
	}
	return matched, nil
}
