package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type webhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) repository.WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Record inserts the event; a redelivery hits the unique key and reports false.
func (r *webhookEventRepository) Record(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	query := `INSERT INTO webhook_events (provider, event_id, event_type, payload, state, received_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (provider, event_id) DO NOTHING
	          RETURNING id`
	logger.DatabaseCall("INSERT", "webhook_events", "provider", e.Provider, "eventID", e.EventID)

	err := conn(ctx, r.db).QueryRowContext(ctx, query, e.Provider, e.EventID, e.EventType, e.Payload, e.State, e.ReceivedAt).Scan(&e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("INSERT", 0, nil, "eventID", e.EventID, "duplicate", true)
		return false, nil
	}
	logger.DatabaseResult("INSERT", 1, err, "eventID", e.EventID)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *webhookEventRepository) GetForUpdate(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error) {
	query := `SELECT id, provider, event_id, event_type, payload, state, payment_id, account_id, COALESCE(error, ''), received_at, processed_at
	          FROM webhook_events WHERE provider = $1 AND event_id = $2 FOR UPDATE`
	var e domain.WebhookEvent
	var paymentID, accountID sql.NullInt64
	var processedAt sql.NullTime
	err := conn(ctx, r.db).QueryRowContext(ctx, query, provider, eventID).Scan(
		&e.ID, &e.Provider, &e.EventID, &e.EventType, &e.Payload, &e.State, &paymentID, &accountID, &e.Error, &e.ReceivedAt, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("webhook event", eventID)
	}
	if err != nil {
		return nil, err
	}
	e.PaymentID = int64Ptr(paymentID)
	e.AccountID = int64Ptr(accountID)
	e.ProcessedAt = timePtr(processedAt)
	return &e, nil
}

// Finish stores the final state of a processed event.
func (r *webhookEventRepository) Finish(ctx context.Context, e *domain.WebhookEvent) error {
	now := time.Now().UTC()
	e.ProcessedAt = &now
	query := `UPDATE webhook_events SET state = $2, payment_id = $3, account_id = $4, error = $5, processed_at = $6 WHERE id = $1`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, e.ID, e.State, nullInt64(e.PaymentID), nullInt64(e.AccountID), nullString(e.Error), now)
	return err
}
