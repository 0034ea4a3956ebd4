// Package events carries post-commit side effects (client email, owner
// notifications) from the ledger to the dispatcher.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"practice-ledger/internal/domain"
)

type Type string

const (
	TypeEmail        Type = "email.send"
	TypeNotification Type = "notification.create"
)

var ErrClosed = errors.New("event bus closed")

// Email is a message to a client. Kind and ClientID are set when the send
// should leave a CommunicationLog row behind.
type Email struct {
	AccountID int64  `json:"account_id"`
	ClientID  int64  `json:"client_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	To        string `json:"to"`
	ToName    string `json:"to_name"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	HTML      string `json:"html,omitempty"`
}

type Event struct {
	ID           string               `json:"id"`
	Type         Type                 `json:"type"`
	OccurredAt   time.Time            `json:"occurred_at"`
	Email        *Email               `json:"email,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

func NewEmail(e Email) Event {
	return Event{ID: uuid.NewString(), Type: TypeEmail, OccurredAt: time.Now().UTC(), Email: &e}
}

func NewNotification(n domain.Notification) Event {
	return Event{ID: uuid.NewString(), Type: TypeNotification, OccurredAt: time.Now().UTC(), Notification: &n}
}

func (e Event) Validate() error {
	switch e.Type {
	case TypeEmail:
		if e.Email == nil || e.Email.To == "" {
			return fmt.Errorf("event %s: email without recipient", e.ID)
		}
	case TypeNotification:
		if e.Notification == nil {
			return fmt.Errorf("event %s: missing notification", e.ID)
		}
	default:
		return fmt.Errorf("event %s: unknown type %q", e.ID, e.Type)
	}
	return nil
}

func decode(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return e, err
	}
	return e, e.Validate()
}

// Publisher is what the ledger services see. Publish is called after commit.
type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
	Close() error
}

type Handler func(ctx context.Context, e Event) error

// Bus is a Publisher that can also drive the consuming side.
type Bus interface {
	Publisher
	// Run delivers events to h until ctx is cancelled.
	Run(ctx context.Context, h Handler) error
}

// Discard drops every event. Used by one-off commands that must not send mail.
type Discard struct{}

func (Discard) Publish(ctx context.Context, evs ...Event) error { return nil }
func (Discard) Close() error                                    { return nil }
