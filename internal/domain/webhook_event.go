package domain

import "time"

type WebhookState string

const (
	WebhookStateReceived WebhookState = "RECEIVED"
	WebhookStateVerified WebhookState = "VERIFIED"
	WebhookStateApplied  WebhookState = "APPLIED"
	WebhookStateRejected WebhookState = "REJECTED"
)

// Final reports whether the event needs no further processing.
func (s WebhookState) Final() bool {
	return s == WebhookStateApplied || s == WebhookStateRejected
}

const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventDocumentCreated = "document.created"
)

const (
	EventScopePayment      = "payment"
	EventScopeSubscription = "subscription"
)

// WebhookEvent is the stored copy of a verified provider delivery. The
// (provider, event id) pair is unique so redeliveries collapse onto one row.
type WebhookEvent struct {
	ID          int64        `json:"id"`
	Provider    string       `json:"provider"`
	EventID     string       `json:"event_id"`
	EventType   string       `json:"event_type"`
	Payload     []byte       `json:"-"`
	State       WebhookState `json:"state"`
	PaymentID   *int64       `json:"payment_id,omitempty"`
	AccountID   *int64       `json:"account_id,omitempty"`
	Error       string       `json:"error,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
}
