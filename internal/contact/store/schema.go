package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id              BIGSERIAL PRIMARY KEY,
		phone_number    TEXT,
		email           TEXT,
		linked_id       BIGINT REFERENCES contacts(id),
		link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		deleted_at      TIMESTAMPTZ,
		CHECK ((link_precedence = 'primary') = (linked_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (email) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_phone_number ON contacts (phone_number) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_linked_id ON contacts (linked_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		phone_number    TEXT,
		email           TEXT,
		linked_id       INTEGER REFERENCES contacts(id),
		link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL,
		deleted_at      TIMESTAMP,
		CHECK ((link_precedence = 'primary') = (linked_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts (email) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_phone_number ON contacts (phone_number) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_linked_id ON contacts (linked_id)`,
}

// Migrate creates the contacts table and its indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapDriverErr(fmt.Sprintf("migrate %s schema", s.dialect), err)
		}
	}
	return nil
}
