package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/database"
)

type admin interface {
	Ping(ctx context.Context) error
	Tombstone(ctx context.Context, id models.ContactID, now time.Time) error
}

// Backend bundles the transaction runner handed to the service with the
// administrative operations the binaries need.
type Backend struct {
	Driver string
	Tx     service.ContactStoreTx

	admin admin
	sql   *SQLStore
	db    *sql.DB
}

// Open builds the backend selected by cfg.Driver. SQL backends are migrated
// before they are returned.
func Open(ctx context.Context, cfg config.DatabaseConfig, txTimeout time.Duration) (*Backend, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		mem := NewInMemory()
		return &Backend{Driver: config.DriverMemory, Tx: mem, admin: mem}, nil
	case config.DriverPostgres, config.DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewPostgres(db)
	if cfg.Driver == config.DriverSQLite {
		s = NewSQLite(db)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{
		Driver: cfg.Driver,
		Tx:     NewSQLTx(s, WithTxTimeout(txTimeout)),
		admin:  s,
		sql:    s,
		db:     db,
	}, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.admin.Ping(ctx)
}

func (b *Backend) Tombstone(ctx context.Context, id models.ContactID, now time.Time) error {
	return b.admin.Tombstone(ctx, id, now)
}

// Migrate re-applies the schema. It is a no-op for the in-memory backend.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.sql == nil {
		return nil
	}
	return b.sql.Migrate(ctx)
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
