package models

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	dErrors "reconciler/pkg/domain-errors"
)

// ContactID is assigned by the store from a monotonic sequence.
type ContactID int64

func (id ContactID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Precedence is the persisted form of a contact's link.
type Precedence string

const (
	PrecedencePrimary   Precedence = "primary"
	PrecedenceSecondary Precedence = "secondary"
)

// Link is either "primary" or "secondary of <primary id>". The zero value is
// a primary link. A secondary can only be built from a primary contact, so a
// secondary pointing at another secondary cannot be constructed.
type Link struct {
	primaryID ContactID
}

// PrimaryLink marks the contact as the head of its own cluster.
func PrimaryLink() Link {
	return Link{}
}

// SecondaryOf links a contact under primary. primary must itself be a primary.
func SecondaryOf(primary *Contact) (Link, error) {
	if primary == nil || primary.ID <= 0 {
		return Link{}, dErrors.New(dErrors.CodeInvariantViolation, "secondary link requires a persisted primary")
	}
	if !primary.IsPrimary() {
		return Link{}, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("contact %d is secondary and cannot head a cluster", primary.ID))
	}
	return Link{primaryID: primary.ID}, nil
}

// RestoreLink rebuilds a link from persisted columns, rejecting rows whose
// precedence and linked id disagree.
func RestoreLink(precedence Precedence, linkedID *ContactID) (Link, error) {
	switch precedence {
	case PrecedencePrimary:
		if linkedID != nil {
			return Link{}, dErrors.New(dErrors.CodeIntegrity, "primary contact carries a linked id")
		}
		return Link{}, nil
	case PrecedenceSecondary:
		if linkedID == nil || *linkedID <= 0 {
			return Link{}, dErrors.New(dErrors.CodeIntegrity, "secondary contact has no linked id")
		}
		return Link{primaryID: *linkedID}, nil
	default:
		return Link{}, dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("unknown link precedence %q", precedence))
	}
}

// IsPrimary reports whether the link heads a cluster.
func (l Link) IsPrimary() bool {
	return l.primaryID == 0
}

// Precedence returns the persisted precedence value.
func (l Link) Precedence() Precedence {
	if l.IsPrimary() {
		return PrecedencePrimary
	}
	return PrecedenceSecondary
}

// PrimaryID returns the linked primary for secondaries.
func (l Link) PrimaryID() (ContactID, bool) {
	if l.IsPrimary() {
		return 0, false
	}
	return l.primaryID, true
}

// LinkedID returns the nullable column value.
func (l Link) LinkedID() *ContactID {
	if l.IsPrimary() {
		return nil
	}
	id := l.primaryID
	return &id
}

// Contact is one recorded (email, phone) submission. Email and Phone are empty
// when absent.
type Contact struct {
	ID        ContactID
	Email     string
	Phone     string
	Link      Link
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewPrimary builds an unsaved primary contact.
func NewPrimary(ids Identifiers, now time.Time) *Contact {
	return &Contact{
		Email:     ids.Email,
		Phone:     ids.Phone,
		Link:      PrimaryLink(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSecondary builds an unsaved secondary contact under primary. Its
// CreatedAt never precedes the primary's, so a skewed clock cannot make a
// secondary the eldest member of its cluster.
func NewSecondary(ids Identifiers, primary *Contact, now time.Time) (*Contact, error) {
	link, err := SecondaryOf(primary)
	if err != nil {
		return nil, err
	}
	if now.Before(primary.CreatedAt) {
		now = primary.CreatedAt
	}
	return &Contact{
		Email:     ids.Email,
		Phone:     ids.Phone,
		Link:      link,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (c *Contact) IsPrimary() bool {
	return c.Link.IsPrimary()
}

func (c *Contact) IsLive() bool {
	return c.DeletedAt == nil
}

// ClusterID is the id of the primary heading this contact's cluster.
func (c *Contact) ClusterID() ContactID {
	if id, ok := c.Link.PrimaryID(); ok {
		return id
	}
	return c.ID
}

// DemoteTo turns a primary into a secondary of survivor.
func (c *Contact) DemoteTo(survivor *Contact, now time.Time) error {
	if !c.IsPrimary() {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("contact %d is already secondary", c.ID))
	}
	if survivor == nil || survivor.ID == c.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "a primary cannot be demoted under itself")
	}
	link, err := SecondaryOf(survivor)
	if err != nil {
		return err
	}
	c.Link = link
	c.UpdatedAt = now
	return nil
}

// Has reports whether the contact already records every present identifier.
func (c *Contact) Has(ids Identifiers) bool {
	if ids.HasEmail() && c.Email != ids.Email {
		return false
	}
	if ids.HasPhone() && c.Phone != ids.Phone {
		return false
	}
	return ids.HasEmail() || ids.HasPhone()
}

// SeniorTo orders contacts by (CreatedAt, ID) ascending.
func (c *Contact) SeniorTo(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// SortBySeniority sorts contacts eldest first.
func SortBySeniority(contacts []*Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].SeniorTo(contacts[j])
	})
}
