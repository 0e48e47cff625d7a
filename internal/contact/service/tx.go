package service

import (
	"context"
	"sort"

	"reconciler/internal/contact/models"
	"reconciler/pkg/platform/tx"
)

// ContactStoreTx provides the atomic boundary for one identify call. The
// match, resolve, merge and gap-fill steps all run inside a single RunInTx;
// implementations commit once when fn returns nil and roll back otherwise.
// Implementations may wrap a database transaction or, in-memory, a coarse lock.
type ContactStoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// maxTxAttempts bounds retries of transactions that lost a serialization race.
const maxTxAttempts = 3

// lockKeys derives one advisory key per supplied identifier, sorted so every
// caller acquires them in the same order.
func lockKeys(ids models.Identifiers) []string {
	var keys []string
	if ids.HasEmail() {
		keys = append(keys, "contact:email:"+ids.Email)
	}
	if ids.HasPhone() {
		keys = append(keys, "contact:phone:"+ids.Phone)
	}
	sort.Strings(keys)
	return keys
}

func withLockKeys(ctx context.Context, ids models.Identifiers) context.Context {
	return tx.WithLockKeys(ctx, lockKeys(ids))
}
