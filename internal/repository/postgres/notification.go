package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "userID", n.UserID, "accountID", n.AccountID, "type", n.Type)

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return err
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO notifications (user_id, account_id, type, title, content, priority, is_read, attributes, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID, "accountID", n.AccountID)

	err = conn(ctx, r.db).QueryRowContext(ctx, query, n.UserID, n.AccountID, n.Type, n.Title, n.Content, n.Priority, n.IsRead, attrs, n.CreatedAt).Scan(&n.ID)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "userID", n.UserID)
	} else {
		logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	}
	return err
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]domain.Notification, error) {
	query := `SELECT id, user_id, account_id, type, title, content, priority, is_read, attributes, created_at
	          FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var attrs []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.AccountID, &n.Type, &n.Title, &n.Content, &n.Priority, &n.IsRead, &attrs, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
				return nil, err
			}
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	logger.DatabaseCall("UPDATE", "notifications", "notificationID", id, "userID", userID)
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "notificationID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NotFound("notification", id)
	}
	return nil
}
