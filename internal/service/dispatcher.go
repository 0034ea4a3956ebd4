package service

import (
	"context"
	"fmt"
	"time"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

// Dispatcher performs the side effects the ledger publishes after commit.
type Dispatcher struct {
	sender           EmailSender
	notificationRepo repository.NotificationRepository
	commLogRepo      repository.CommunicationLogRepository
	now              func() time.Time
}

func NewDispatcher(sender EmailSender, notificationRepo repository.NotificationRepository, commLogRepo repository.CommunicationLogRepository) *Dispatcher {
	return &Dispatcher{
		sender:           sender,
		notificationRepo: notificationRepo,
		commLogRepo:      commLogRepo,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Handle is an events.Handler.
func (d *Dispatcher) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.TypeEmail:
		return d.sendEmail(ctx, e.ID, e.Email)
	case events.TypeNotification:
		n := *e.Notification
		if n.CreatedAt.IsZero() {
			n.CreatedAt = e.OccurredAt
		}
		if err := d.notificationRepo.Create(ctx, &n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		logger.Debug("Notification created", "eventID", e.ID, "userID", n.UserID, "type", n.Type)
		return nil
	default:
		logger.Warn("Ignoring unknown event", "eventID", e.ID, "type", e.Type)
		return nil
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, eventID string, msg *events.Email) error {
	sendErr := d.sender.Send(ctx, *msg)
	if sendErr != nil {
		logger.Error("Email delivery failed", "eventID", eventID, "to", msg.To, "error", sendErr)
	}
	if msg.Kind != "" && msg.ClientID != 0 {
		if err := d.commLogRepo.Create(ctx, communicationLog(msg, sendErr, d.now())); err != nil {
			logger.Error("Failed to write communication log", "eventID", eventID, "error", err)
		}
	}
	return sendErr
}

func communicationLog(msg *events.Email, sendErr error, now time.Time) *domain.CommunicationLog {
	l := &domain.CommunicationLog{
		AccountID: msg.AccountID,
		ClientID:  msg.ClientID,
		Channel:   "email",
		Kind:      msg.Kind,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Status:    domain.CommunicationSent,
		CreatedAt: now,
	}
	if sendErr != nil {
		l.Status = domain.CommunicationFailed
		l.Error = sendErr.Error()
	}
	return l
}
