// Package events describes the contact lifecycle facts published after an
// identify call commits, and the publishers that ship them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reconciler/internal/contact/models"
)

// Type names an event on the wire.
type Type string

const (
	TypeContactCreated Type = "contact.created"
	TypeContactMerged  Type = "contact.merged"
)

// Event is one committed change to the contact graph.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	RequestID  string            `json:"request_id,omitempty"`
	ContactID  models.ContactID  `json:"contact_id"`
	PrimaryID  models.ContactID  `json:"primary_id"`
	Precedence models.Precedence `json:"precedence,omitempty"`
	Repointed  int64             `json:"repointed,omitempty"`
}

// Key partitions events by cluster so one cluster's history stays ordered.
func (e Event) Key() string {
	return e.PrimaryID.String()
}

// Publisher ships events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
}

// FromOutcome derives the events for one committed identify call.
func FromOutcome(outcome *models.IdentifyOutcome, requestID string, at time.Time) []Event {
	if outcome == nil || outcome.Contact == nil {
		return nil
	}
	var evts []Event
	for _, m := range outcome.Merges {
		evts = append(evts, Event{
			ID:         uuid.NewString(),
			Type:       TypeContactMerged,
			OccurredAt: at,
			RequestID:  requestID,
			ContactID:  m.DemotedID,
			PrimaryID:  m.SurvivorID,
			Precedence: models.PrecedenceSecondary,
			Repointed:  m.Repointed,
		})
	}
	if outcome.Created() {
		evts = append(evts, Event{
			ID:         uuid.NewString(),
			Type:       TypeContactCreated,
			OccurredAt: at,
			RequestID:  requestID,
			ContactID:  outcome.CreatedID,
			PrimaryID:  outcome.Contact.PrimaryID,
			Precedence: outcome.CreatedAs,
		})
	}
	return evts
}
