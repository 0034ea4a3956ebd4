package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type LumpMode string

const (
	LumpModeFull    LumpMode = "FULL"
	LumpModePartial LumpMode = "PARTIAL"
)

func (m LumpMode) Valid() bool {
	return m == LumpModeFull || m == LumpModePartial
}

// RemainderTolerance is the leftover a FULL distribution may end with before
// it is reported as inconsistent.
var RemainderTolerance = decimal.NewFromFloat(0.01)

type Allocation struct {
	PaymentID  int64           `json:"payment_id"`
	Applied    decimal.Decimal `json:"applied"`
	NewAmount  decimal.Decimal `json:"new_amount"`
	Status     PaymentStatus   `json:"status"`
	BecamePaid bool            `json:"became_paid"`
}

// OrderOldestFirst sorts payments by creation time, ties broken by id.
func OrderOldestFirst(payments []*Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
}

// DistributeFIFO pays down payments oldest first with total and returns what
// went where plus the unapplied remainder. Payments are mutated in place;
// untouched rows get no allocation.
func DistributeFIFO(payments []*Payment, total decimal.Decimal, method PaymentMethod, now time.Time) ([]Allocation, decimal.Decimal) {
	OrderOldestFirst(payments)

	remaining := total
	var allocations []Allocation
	for _, p := range payments {
		if !remaining.IsPositive() {
			break
		}
		debt := p.Debt()
		if !debt.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, debt)
		becamePaid := p.Apply(applied, method, now)
		remaining = remaining.Sub(applied)
		allocations = append(allocations, Allocation{
			PaymentID:  p.ID,
			Applied:    applied,
			NewAmount:  p.Amount,
			Status:     p.Status,
			BecamePaid: becamePaid,
		})
	}
	return allocations, remaining
}
