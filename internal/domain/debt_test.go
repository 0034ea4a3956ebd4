package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"practice-ledger/internal/domain"
)

func TestAggregateDebts(t *testing.T) {
	d1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	pid := int64(1)
	sid := int64(2)

	items := []domain.DebtItem{
		{ClientID: 7, ClientName: "Noa", ClientEmail: "noa@example.com", SessionID: &sid, SessionDate: &d2, ExpectedAmount: dec("200"), Amount: decimal.Zero},
		{ClientID: 3, ClientName: "Ari", ClientEmail: "ari@example.com", PaymentID: &pid, ExpectedAmount: dec("100"), Amount: dec("40"), CreatedAt: d1},
		{ClientID: 7, ClientName: "Noa", ClientEmail: "noa@example.com", PaymentID: &pid, SessionDate: &d1, ExpectedAmount: dec("150"), Amount: dec("50")},
	}

	debts := domain.AggregateDebts(items)

	assert.Len(t, debts, 2)
	assert.Equal(t, int64(3), debts[0].ClientID)
	assert.True(t, debts[0].Total.Equal(dec("60")))

	assert.Equal(t, int64(7), debts[1].ClientID)
	assert.True(t, debts[1].Total.Equal(dec("300")))
	assert.Equal(t, d1, debts[1].Items[0].When())
	assert.Equal(t, d2, debts[1].Items[1].When())
}

func TestDebtItem_OutstandingNeverNegative(t *testing.T) {
	it := domain.DebtItem{ExpectedAmount: dec("10"), Amount: dec("15")}
	assert.True(t, it.Outstanding().IsZero())
}

func TestAccount_ReminderDue(t *testing.T) {
	acc := &domain.Account{RemindersEnabled: true, ReminderDayOfMonth: 31}

	assert.True(t, acc.ReminderDue(time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC)))
	assert.False(t, acc.ReminderDue(time.Date(2026, 3, 30, 8, 0, 0, 0, time.UTC)))
	assert.True(t, acc.ReminderDue(time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)))

	acc.RemindersEnabled = false
	assert.False(t, acc.ReminderDue(time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)))
}
