package models

import (
	pkgstrings "reconciler/pkg/platform/strings"
)

// Identifiers are the touchpoints of one identify call. Blank values are
// normalized to "" and mean "not supplied"; present values are kept verbatim.
type Identifiers struct {
	Email string
	Phone string
}

// NewIdentifiers drops blank values. No other normalization is applied.
func NewIdentifiers(email, phone string) Identifiers {
	return Identifiers{
		Email: pkgstrings.Present(email),
		Phone: pkgstrings.Present(phone),
	}
}

func (i Identifiers) HasEmail() bool { return i.Email != "" }
func (i Identifiers) HasPhone() bool { return i.Phone != "" }

// Empty reports whether neither identifier was supplied.
func (i Identifiers) Empty() bool {
	return !i.HasEmail() && !i.HasPhone()
}

// ConsolidatedContact is the merged view of one identity cluster. The
// primary's own email and phone, when present, sit at index 0.
type ConsolidatedContact struct {
	PrimaryID    ContactID
	Emails       []string
	PhoneNumbers []string
	SecondaryIDs []ContactID
}

// EmptyConsolidated is returned for identify calls that persist nothing.
func EmptyConsolidated() *ConsolidatedContact {
	return &ConsolidatedContact{
		Emails:       []string{},
		PhoneNumbers: []string{},
		SecondaryIDs: []ContactID{},
	}
}

// MergeRecord describes one demoted primary.
type MergeRecord struct {
	SurvivorID ContactID
	DemotedID  ContactID
	Repointed  int64
}

// IdentifyOutcome is what one identify call did to the store.
type IdentifyOutcome struct {
	Contact      *ConsolidatedContact
	CreatedID    ContactID
	CreatedAs    Precedence
	Merges       []MergeRecord
	MatchedCount int
}

// Created reports whether the call inserted a contact.
func (o *IdentifyOutcome) Created() bool {
	return o.CreatedID != 0
}
