package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/utils"
)

type BillingProvider string

const (
	BillingProviderSelf      BillingProvider = "self"
	BillingProviderLedgerly  BillingProvider = "ledgerly"
	BillingProviderTillpoint BillingProvider = "tillpoint"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Account is the tenant that owns clients, sessions and payments.
type Account struct {
	ID                 int64              `json:"id"`
	OwnerUserID        int64              `json:"owner_user_id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	BillingProvider    BillingProvider    `json:"billing_provider"`
	ProviderAPIKey     string             `json:"-"`
	ProviderAPISecret  string             `json:"-"`
	ProviderCompanyID  string             `json:"-"`
	NextReceiptNumber  int                `json:"next_receipt_number"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	RemindersEnabled   bool               `json:"reminders_enabled"`
	ReminderDayOfMonth int                `json:"reminder_day_of_month"`
	ReminderMinDebt    decimal.Decimal    `json:"reminder_min_debt"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ReminderDue reports whether today is the account's reminder day. A day past
// the end of a short month fires on that month's last day.
func (a *Account) ReminderDue(now time.Time) bool {
	if !a.RemindersEnabled || a.ReminderDayOfMonth <= 0 {
		return false
	}
	return utils.IsDayOfMonth(now, a.ReminderDayOfMonth)
}

// UsesExternalProvider is false for accounts that number their own receipts.
func (a *Account) UsesExternalProvider() bool {
	return a.BillingProvider != "" && a.BillingProvider != BillingProviderSelf
}
