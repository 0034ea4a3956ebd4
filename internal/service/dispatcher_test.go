package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
)

func TestDispatcher_Handle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	newDispatcher := func() (*Dispatcher, *MockEmailSender, *MockNotificationRepo, *MockCommLogRepo) {
		sender, notifs, logs := new(MockEmailSender), new(MockNotificationRepo), new(MockCommLogRepo)
		d := NewDispatcher(sender, notifs, logs)
		d.now = func() time.Time { return now }
		return d, sender, notifs, logs
	}

	t.Run("Email sent and logged", func(t *testing.T) {
		d, sender, _, logs := newDispatcher()
		msg := events.Email{AccountID: 1, ClientID: 10, Kind: domain.CommunicationKindReceipt, To: "dana@example.com", Subject: "Receipt"}
		sender.On("Send", ctx, msg).Return(nil)
		logs.On("Create", ctx, mock.MatchedBy(func(l *domain.CommunicationLog) bool {
			return l.Status == domain.CommunicationSent && l.ClientID == 10 && l.Channel == "email" && l.CreatedAt.Equal(now)
		})).Return(nil)

		err := d.Handle(ctx, events.NewEmail(msg))
		assert.NoError(t, err)
		sender.AssertExpectations(t)
		logs.AssertExpectations(t)
	})

	t.Run("Failed email is logged and returned for retry", func(t *testing.T) {
		d, sender, _, logs := newDispatcher()
		msg := events.Email{AccountID: 1, ClientID: 10, Kind: domain.CommunicationKindDebtReminder, To: "dana@example.com"}
		sender.On("Send", ctx, msg).Return(errors.New("smtp down"))
		logs.On("Create", ctx, mock.MatchedBy(func(l *domain.CommunicationLog) bool {
			return l.Status == domain.CommunicationFailed && l.Error == "smtp down"
		})).Return(nil)

		err := d.Handle(ctx, events.NewEmail(msg))
		assert.EqualError(t, err, "smtp down")
		logs.AssertExpectations(t)
	})

	t.Run("Owner mail is not a client communication", func(t *testing.T) {
		d, sender, _, logs := newDispatcher()
		msg := events.Email{AccountID: 1, To: "owner@harbor.test"}
		sender.On("Send", ctx, msg).Return(nil)

		assert.NoError(t, d.Handle(ctx, events.NewEmail(msg)))
		logs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Notification stored", func(t *testing.T) {
		d, sender, notifs, _ := newDispatcher()
		ev := events.NewNotification(domain.Notification{UserID: 500, AccountID: 1, Type: domain.NotificationPaymentReceived, Title: "Payment received"})
		notifs.On("Create", ctx, mock.MatchedBy(func(n *domain.Notification) bool {
			return n.UserID == 500 && n.CreatedAt.Equal(ev.OccurredAt)
		})).Return(nil)

		assert.NoError(t, d.Handle(ctx, ev))
		notifs.AssertExpectations(t)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("Unknown type is dropped", func(t *testing.T) {
		d, _, _, _ := newDispatcher()
		assert.NoError(t, d.Handle(ctx, events.Event{ID: "x", Type: "sms.send"}))
	})
}
