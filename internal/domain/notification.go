package domain

import "time"

type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
)

const (
	NotificationPaymentReceived     = "payment_received"
	NotificationPaymentFailed       = "payment_failed"
	NotificationSubscriptionPastDue = "subscription_past_due"
	NotificationRemindersSent       = "debt_reminders_sent"
)

type Notification struct {
	ID         int64                `json:"id"`
	UserID     int64                `json:"user_id"`
	AccountID  int64                `json:"account_id"`
	Type       string               `json:"type"`
	Title      string               `json:"title"`
	Content    string               `json:"content"`
	Priority   NotificationPriority `json:"priority"`
	IsRead     bool                 `json:"is_read"`
	Attributes map[string]string    `json:"attributes"`
	CreatedAt  time.Time            `json:"created_at"`
}
