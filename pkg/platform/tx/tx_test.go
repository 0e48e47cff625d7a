package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromWithoutTx(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)

	ctx := WithTx(context.Background(), nil)
	_, ok = From(ctx)
	assert.False(t, ok, "nil tx is not stored")
}

func TestQuerierFromFallsBackToDB(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, QuerierFrom(context.Background(), db))
}

func TestLockKeys(t *testing.T) {
	assert.Nil(t, LockKeys(context.Background()))

	ctx := WithLockKeys(context.Background(), []string{"contact:email:a@x.com", "contact:phone:111"})
	assert.Equal(t, []string{"contact:email:a@x.com", "contact:phone:111"}, LockKeys(ctx))
}
