package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"reconciler/internal/contact/models"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/platform/tx"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// SQLStore persists contacts in PostgreSQL or SQLite. Methods join the
// transaction carried in ctx when there is one.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgres constructs a PostgreSQL-backed contact store.
func NewPostgres(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres}
}

// NewSQLite constructs a SQLite-backed contact store.
func NewSQLite(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectSQLite}
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) q(ctx context.Context) tx.Querier {
	return tx.QuerierFrom(ctx, s.db)
}

func (s *SQLStore) FindLive(ctx context.Context, ids models.Identifiers) ([]*models.Contact, error) {
	var (
		conds []string
		args  []any
	)
	if ids.HasEmail() {
		conds = append(conds, "email = ?")
		args = append(args, ids.Email)
	}
	if ids.HasPhone() {
		conds = append(conds, "phone_number = ?")
		args = append(args, ids.Phone)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY id`
	return s.queryContacts(ctx, "find live contacts", query, args...)
}

func (s *SQLStore) FindLiveByID(ctx context.Context, id models.ContactID) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ? AND deleted_at IS NULL`
	row := s.q(ctx).QueryRowContext(ctx, s.rebind(query), int64(id))
	c, err := scanContact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, s.mapErr("find contact by id", err)
	}
	return c, nil
}

func (s *SQLStore) FindCluster(ctx context.Context, primaryID models.ContactID) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (id = ? OR linked_id = ?)
		ORDER BY id`
	return s.queryContacts(ctx, "find cluster", query, int64(primaryID), int64(primaryID))
}

func (s *SQLStore) Insert(ctx context.Context, contact *models.Contact) error {
	query := `INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	var id int64
	err := s.q(ctx).QueryRowContext(ctx, s.rebind(query),
		nullString(contact.Email),
		nullString(contact.Phone),
		nullID(contact.Link.LinkedID()),
		string(contact.Link.Precedence()),
		contact.CreatedAt.UTC(),
		contact.UpdatedAt.UTC(),
		nullTime(contact.DeletedAt),
	).Scan(&id)
	if err != nil {
		return s.mapErr("insert contact", err)
	}
	contact.ID = models.ContactID(id)
	return nil
}

func (s *SQLStore) DemoteToSecondary(ctx context.Context, id, newPrimaryID models.ContactID, now time.Time) error {
	query := `UPDATE contacts
		SET link_precedence = 'secondary', linked_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND link_precedence = 'primary'`
	res, err := s.q(ctx).ExecContext(ctx, s.rebind(query), int64(newPrimaryID), now.UTC(), int64(id))
	if err != nil {
		return s.mapErr("demote contact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.mapErr("demote contact", err)
	}
	if n == 0 {
		return fmt.Errorf("demote contact %d: %w", id, sentinel.ErrConflict)
	}
	return nil
}

// RepointSecondaries moves every row linked to oldPrimaryID, tombstoned rows
// included, under newPrimaryID.
func (s *SQLStore) RepointSecondaries(ctx context.Context, oldPrimaryID, newPrimaryID models.ContactID, now time.Time) (int64, error) {
	query := `UPDATE contacts SET linked_id = ?, updated_at = ? WHERE linked_id = ?`
	res, err := s.q(ctx).ExecContext(ctx, s.rebind(query), int64(newPrimaryID), now.UTC(), int64(oldPrimaryID))
	if err != nil {
		return 0, s.mapErr("repoint secondaries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.mapErr("repoint secondaries", err)
	}
	return n, nil
}

// Tombstone soft-deletes a live contact. Secondaries are left pointing at it.
func (s *SQLStore) Tombstone(ctx context.Context, id models.ContactID, now time.Time) error {
	query := `UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	res, err := s.q(ctx).ExecContext(ctx, s.rebind(query), now.UTC(), now.UTC(), int64(id))
	if err != nil {
		return s.mapErr("tombstone contact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.mapErr("tombstone contact", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w: %w", s.dialect, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) queryContacts(ctx context.Context, op, query string, args ...any) ([]*models.Contact, error) {
	rows, err := s.q(ctx).QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.mapErr(op, err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, s.mapErr(op, err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr(op, err)
	}
	return contacts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*models.Contact, error) {
	var (
		id         int64
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)
	if err := row.Scan(&id, &email, &phone, &linkedID, &precedence, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	var linked *models.ContactID
	if linkedID.Valid {
		l := models.ContactID(linkedID.Int64)
		linked = &l
	}
	link, err := models.RestoreLink(models.Precedence(precedence), linked)
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", id, err)
	}

	c := &models.Contact{
		ID:        models.ContactID(id),
		Email:     email.String,
		Phone:     phone.String,
		Link:      link,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if deletedAt.Valid {
		d := deletedAt.Time.UTC()
		c.DeletedAt = &d
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id *models.ContactID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
