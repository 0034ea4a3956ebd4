package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
)

// MockClientRepo
type MockClientRepo struct {
	mock.Mock
}

func (m *MockClientRepo) GetByID(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	args := m.Called(ctx, accountID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}
func (m *MockClientRepo) GetForUpdate(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	args := m.Called(ctx, accountID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}
func (m *MockClientRepo) IncreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, clientID, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}
func (m *MockClientRepo) DecreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, clientID, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *MockNotificationRepo) ListByUser(ctx context.Context, userID int64, limit, offset int32) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]domain.Notification), args.Error(1)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int64) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

// MockCommLogRepo
type MockCommLogRepo struct {
	mock.Mock
}

func (m *MockCommLogRepo) Create(ctx context.Context, l *domain.CommunicationLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

// MockEmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg events.Email) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
