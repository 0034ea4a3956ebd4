package service

import (
	"context"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/repository"
)

const maxNotificationPageSize = 100

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int64, page, pageSize int32) ([]domain.Notification, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxNotificationPageSize {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.ListByUser(ctx, userID, pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int64) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, userID)
}
