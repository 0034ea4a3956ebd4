package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusScheduled           SessionStatus = "SCHEDULED"
	SessionStatusCompleted           SessionStatus = "COMPLETED"
	SessionStatusCancelled           SessionStatus = "CANCELLED"
	SessionStatusNoShow              SessionStatus = "NO_SHOW"
	SessionStatusPendingCancellation SessionStatus = "PENDING_CANCELLATION"
)

// BillableSessionStatuses are the statuses whose sessions can leave a debt behind.
var BillableSessionStatuses = []SessionStatus{
	SessionStatusCompleted,
	SessionStatusCancelled,
	SessionStatusNoShow,
}

type Session struct {
	ID         int64           `json:"id"`
	AccountID  int64           `json:"account_id"`
	ClientID   int64           `json:"client_id"`
	StartsAt   time.Time       `json:"starts_at"`
	Price      decimal.Decimal `json:"price"`
	Status     SessionStatus   `json:"status"`
	Chargeable bool            `json:"chargeable"` // cancellation policy decides for CANCELLED / NO_SHOW
	CreatedAt  time.Time       `json:"created_at"`
}

func (s *Session) IsBillable() bool {
	for _, st := range BillableSessionStatuses {
		if s.Status == st {
			return s.Chargeable && s.Price.IsPositive()
		}
	}
	return false
}
