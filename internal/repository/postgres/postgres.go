package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"practice-ledger/internal/repository"
)

type Store struct {
	db *sql.DB
	*TxManager
	repository.AccountRepository
	repository.ClientRepository
	repository.SessionRepository
	repository.PaymentRepository
	repository.NotificationRepository
	repository.CommunicationLogRepository
	repository.WebhookEventRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                         db,
		TxManager:                  NewTxManager(db),
		AccountRepository:          NewAccountRepository(db),
		ClientRepository:           NewClientRepository(db),
		SessionRepository:          NewSessionRepository(db),
		PaymentRepository:          NewPaymentRepository(db),
		NotificationRepository:     NewNotificationRepository(db),
		CommunicationLogRepository: NewCommunicationLogRepository(db),
		WebhookEventRepository:     NewWebhookEventRepository(db),
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or db when there is none.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
