package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
)

type CreatePaymentInput struct {
	ClientID       int64                `json:"client_id"`
	SessionID      *int64               `json:"session_id,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	ExpectedAmount decimal.Decimal      `json:"expected_amount"`
	Method         domain.PaymentMethod `json:"method"`
	Type           domain.PaymentType   `json:"payment_type"`
	CreditUsed     decimal.Decimal      `json:"credit_used"`
	Notes          string               `json:"notes,omitempty"`
}

type ApplyPaymentInput struct {
	AdditionalAmount decimal.Decimal      `json:"additional_amount"`
	Method           domain.PaymentMethod `json:"method"`
	// IssueReceipt asks for a receipt on a paid payment that has none yet
	IssueReceipt bool `json:"issue_receipt"`
}

type LumpPaymentInput struct {
	ClientID    int64                `json:"client_id"`
	PaymentIDs  []int64              `json:"payment_ids"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Method      domain.PaymentMethod `json:"method"`
	Mode        domain.LumpMode      `json:"mode"`
	CreditUsed  decimal.Decimal      `json:"credit_used"`
}

type LumpPaymentReport struct {
	ClientID    int64                      `json:"client_id"`
	TotalPaid   decimal.Decimal            `json:"total_paid"`
	Remaining   decimal.Decimal            `json:"remaining"`
	CreditUsed  decimal.Decimal            `json:"credit_used"`
	Allocations []domain.Allocation        `json:"allocations"`
	Warning     *domain.ConsistencyWarning `json:"warning,omitempty"`
}

type LedgerService interface {
	Create(ctx context.Context, accountID int64, in CreatePaymentInput) (*domain.Payment, error)
	ApplyPayment(ctx context.Context, accountID, paymentID int64, in ApplyPaymentInput) (*domain.Payment, error)
	DistributeLumpPayment(ctx context.Context, accountID int64, in LumpPaymentInput) (*LumpPaymentReport, error)
	GetPayment(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error)
	ListClientPayments(ctx context.Context, accountID, clientID int64, includeAudit bool) ([]domain.Payment, error)
	GetClientDebt(ctx context.Context, accountID, clientID int64) (*domain.ClientDebt, error)
}

type CreditService interface {
	Increase(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Decrease(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(ctx context.Context, accountID, clientID int64) (decimal.Decimal, error)
}

type ReceiptService interface {
	// IssueReceipt is best-effort: on provider failure the payment keeps
	// has_receipt = false and the error is returned for logging only.
	IssueReceipt(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error)
	// IssueOnSettlement is IssueReceipt for a payment that just became paid;
	// on provider failure the client is sent a confirmation without a receipt.
	IssueOnSettlement(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error)
	// RetryMissing re-issues receipts for payments settled before paidBefore.
	RetryMissing(ctx context.Context, paidBefore time.Time, limit int) (issued, failed int, err error)
}

type WebhookService interface {
	// Process verifies the signature before touching any state.
	Process(ctx context.Context, body []byte, signature string) (*domain.WebhookEvent, error)
}

// NotificationService is the account owner's in-app feed.
type NotificationService interface {
	GetNotifications(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID int64) error
}

// EmailSender delivers one message to a client or account owner.
type EmailSender interface {
	Send(ctx context.Context, msg events.Email) error
}
