package postgres

import (
	"context"
	"database/sql"
	"time"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type communicationLogRepository struct {
	db *sql.DB
}

func NewCommunicationLogRepository(db *sql.DB) repository.CommunicationLogRepository {
	return &communicationLogRepository{db: db}
}

func (r *communicationLogRepository) Create(ctx context.Context, l *domain.CommunicationLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO communication_logs (account_id, client_id, channel, kind, recipient, subject, status, error, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	logger.DatabaseCall("INSERT", "communication_logs", "accountID", l.AccountID, "clientID", l.ClientID, "kind", l.Kind)

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		l.AccountID, l.ClientID, l.Channel, l.Kind, l.Recipient, l.Subject, l.Status, nullString(l.Error), l.CreatedAt,
	).Scan(&l.ID)
	logger.DatabaseResult("INSERT", 1, err, "logID", l.ID)
	return err
}
