package domain

import "time"

type CommunicationStatus string

const (
	CommunicationSent   CommunicationStatus = "SENT"
	CommunicationFailed CommunicationStatus = "FAILED"
)

const (
	CommunicationKindDebtReminder        = "debt_reminder"
	CommunicationKindReceipt             = "receipt"
	CommunicationKindPaymentConfirmation = "payment_confirmation"
)

// CommunicationLog is an append-only record of a message sent to a client.
type CommunicationLog struct {
	ID        int64               `json:"id"`
	AccountID int64               `json:"account_id"`
	ClientID  int64               `json:"client_id"`
	Channel   string              `json:"channel"`
	Kind      string              `json:"kind"`
	Recipient string              `json:"recipient"`
	Subject   string              `json:"subject"`
	Status    CommunicationStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}
