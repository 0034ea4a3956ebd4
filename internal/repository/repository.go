package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
)

// TxManager runs fn in one database transaction. Repositories called with the
// ctx handed to fn join that transaction; nested calls reuse it.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ListWithRemindersEnabled(ctx context.Context) ([]domain.Account, error)
	// NextReceiptNumber consumes and returns the account's current counter value.
	NextReceiptNumber(ctx context.Context, accountID int64) (int, error)
	UpdateSubscriptionStatus(ctx context.Context, accountID int64, status domain.SubscriptionStatus) error
}

type ClientRepository interface {
	GetByID(ctx context.Context, accountID, clientID int64) (*domain.Client, error)
	GetForUpdate(ctx context.Context, accountID, clientID int64) (*domain.Client, error)
	IncreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// DecreaseCredit fails with *domain.InsufficientCreditError and leaves the
	// balance untouched when it would go negative.
	DecreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

type SessionRepository interface {
	GetByID(ctx context.Context, accountID, sessionID int64) (*domain.Session, error)
	ListUnpaidBillable(ctx context.Context, accountID, clientID int64) ([]domain.Session, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error)
	GetByCorrelationTokenForUpdate(ctx context.Context, token string) (*domain.Payment, error)
	// LockForClient returns the client's payments among ids, locked and ordered by id.
	LockForClient(ctx context.Context, accountID, clientID int64, ids []int64) ([]*domain.Payment, error)
	ExistsForSession(ctx context.Context, sessionID int64) (bool, error)
	UpdateProgress(ctx context.Context, p *domain.Payment) error
	// AttachReceipt writes receipt details once; false means a receipt was already there.
	AttachReceipt(ctx context.Context, paymentID int64, number, url string) (bool, error)
	UpdateNotes(ctx context.Context, paymentID int64, notes string) error
	ListByClient(ctx context.Context, accountID, clientID int64, includeAudit bool) ([]domain.Payment, error)
	ListMissingReceipts(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Payment, error)
	ListUnsettled(ctx context.Context, accountID int64) ([]domain.DebtItem, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]domain.Notification, error)
	// MarkAsRead returns ErrNotFound when the notification is not the user's.
	MarkAsRead(ctx context.Context, id, userID int64) error
}

type CommunicationLogRepository interface {
	Create(ctx context.Context, l *domain.CommunicationLog) error
}

type WebhookEventRepository interface {
	// Record stores the event unless (provider, event id) is already present.
	Record(ctx context.Context, e *domain.WebhookEvent) (bool, error)
	GetForUpdate(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error)
	Finish(ctx context.Context, e *domain.WebhookEvent) error
}
