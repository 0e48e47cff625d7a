package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
)

// Error Contract:
// - FindLiveByID, Tombstone return ErrNotFound for unknown or tombstoned ids
// - DemoteToSecondary returns ErrConflict when the row is no longer a live primary
// - Contacts are copied in and out; callers never share memory with the table

// InMemory keeps contacts in process memory for tests and single-instance dev.
type InMemory struct {
	mu       sync.Mutex
	nextID   models.ContactID
	contacts map[models.ContactID]*models.Contact
	byEmail  map[string][]models.ContactID
	byPhone  map[string][]models.ContactID
	timeout  time.Duration
}

// NewInMemory constructs an empty in-memory contact table.
func NewInMemory() *InMemory {
	return &InMemory{
		contacts: make(map[models.ContactID]*models.Contact),
		byEmail:  make(map[string][]models.ContactID),
		byPhone:  make(map[string][]models.ContactID),
	}
}

// RunInTx serializes fn against every other transaction on the table and
// undoes its writes if it returns an error.
func (m *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTxTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	journal := &memoryTx{m: m}
	if err := fn(ctx, journal); err != nil {
		journal.rollback()
		return err
	}
	return nil
}

// Tombstone soft-deletes a live contact. Secondaries are left pointing at it.
func (m *InMemory) Tombstone(_ context.Context, id models.ContactID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || !c.IsLive() {
		return fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	deletedAt := now
	c.DeletedAt = &deletedAt
	c.UpdatedAt = now
	return nil
}

// Seed stores contacts verbatim, ids and timestamps included. Links are not
// validated, so fixtures may describe corrupt graphs.
func (m *InMemory) Seed(contacts ...*models.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contacts {
		stored := clone(c)
		m.contacts[stored.ID] = stored
		if stored.Email != "" {
			m.byEmail[stored.Email] = append(m.byEmail[stored.Email], stored.ID)
		}
		if stored.Phone != "" {
			m.byPhone[stored.Phone] = append(m.byPhone[stored.Phone], stored.ID)
		}
		if stored.ID > m.nextID {
			m.nextID = stored.ID
		}
	}
}

// Ping always succeeds.
func (m *InMemory) Ping(context.Context) error {
	return nil
}

// Count returns the number of rows, tombstoned included.
func (m *InMemory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}

// memoryTx is the Store handed to fn while the table lock is held. Every write
// pushes its inverse onto undo.
type memoryTx struct {
	m    *InMemory
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) FindLive(_ context.Context, ids models.Identifiers) ([]*models.Contact, error) {
	seen := make(map[models.ContactID]struct{})
	var found []*models.Contact
	collect := func(idx []models.ContactID) {
		for _, id := range idx {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if c := t.m.contacts[id]; c != nil && c.IsLive() {
				found = append(found, clone(c))
			}
		}
	}
	if ids.HasEmail() {
		collect(t.m.byEmail[ids.Email])
	}
	if ids.HasPhone() {
		collect(t.m.byPhone[ids.Phone])
	}
	sortByID(found)
	return found, nil
}

func (t *memoryTx) FindLiveByID(_ context.Context, id models.ContactID) (*models.Contact, error) {
	c, ok := t.m.contacts[id]
	if !ok || !c.IsLive() {
		return nil, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	return clone(c), nil
}

func (t *memoryTx) FindCluster(_ context.Context, primaryID models.ContactID) ([]*models.Contact, error) {
	var cluster []*models.Contact
	for _, c := range t.m.contacts {
		if !c.IsLive() {
			continue
		}
		if c.ID == primaryID || c.ClusterID() == primaryID {
			cluster = append(cluster, clone(c))
		}
	}
	sortByID(cluster)
	return cluster, nil
}

func (t *memoryTx) Insert(_ context.Context, contact *models.Contact) error {
	m := t.m
	m.nextID++
	contact.ID = m.nextID
	stored := clone(contact)
	m.contacts[stored.ID] = stored
	if stored.Email != "" {
		m.byEmail[stored.Email] = append(m.byEmail[stored.Email], stored.ID)
	}
	if stored.Phone != "" {
		m.byPhone[stored.Phone] = append(m.byPhone[stored.Phone], stored.ID)
	}

	// ids are not reused after rollback, like a database sequence
	t.undo = append(t.undo, func() {
		delete(m.contacts, stored.ID)
		if stored.Email != "" {
			m.byEmail[stored.Email] = dropLast(m.byEmail[stored.Email], stored.ID)
		}
		if stored.Phone != "" {
			m.byPhone[stored.Phone] = dropLast(m.byPhone[stored.Phone], stored.ID)
		}
	})
	return nil
}

func (t *memoryTx) DemoteToSecondary(_ context.Context, id, newPrimaryID models.ContactID, now time.Time) error {
	c, ok := t.m.contacts[id]
	if !ok || !c.IsLive() || !c.IsPrimary() {
		return fmt.Errorf("demote contact %d: %w", id, sentinel.ErrConflict)
	}
	survivor, ok := t.m.contacts[newPrimaryID]
	if !ok {
		return fmt.Errorf("demote contact %d under %d: %w", id, newPrimaryID, sentinel.ErrNotFound)
	}
	prev := *c
	if err := c.DemoteTo(survivor, now); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { *c = prev })
	return nil
}

func (t *memoryTx) RepointSecondaries(_ context.Context, oldPrimaryID, newPrimaryID models.ContactID, now time.Time) (int64, error) {
	survivor, ok := t.m.contacts[newPrimaryID]
	if !ok {
		return 0, fmt.Errorf("repoint to %d: %w", newPrimaryID, sentinel.ErrNotFound)
	}
	var moved int64
	for _, c := range t.m.contacts {
		if linked, ok := c.Link.PrimaryID(); !ok || linked != oldPrimaryID || c.ID == oldPrimaryID {
			continue
		}
		link, err := models.SecondaryOf(survivor)
		if err != nil {
			return moved, err
		}
		prev := *c
		c.Link = link
		c.UpdatedAt = now
		t.undo = append(t.undo, func() { *c = prev })
		moved++
	}
	return moved, nil
}

func clone(c *models.Contact) *models.Contact {
	cp := *c
	if c.DeletedAt != nil {
		d := *c.DeletedAt
		cp.DeletedAt = &d
	}
	return &cp
}

func sortByID(contacts []*models.Contact) {
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
}

func dropLast(ids []models.ContactID, id models.ContactID) []models.ContactID {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
