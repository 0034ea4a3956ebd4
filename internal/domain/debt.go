package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DebtItem is one unsettled charge of a client: a PENDING payment, or a
// billable session that never got a payment row.
type DebtItem struct {
	ClientID       int64
	ClientName     string
	ClientEmail    string
	PaymentID      *int64
	SessionID      *int64
	SessionDate    *time.Time
	ExpectedAmount decimal.Decimal
	Amount         decimal.Decimal
	CreatedAt      time.Time
}

func (d DebtItem) Outstanding() decimal.Decimal {
	o := d.ExpectedAmount.Sub(d.Amount)
	if o.IsNegative() {
		return decimal.Zero
	}
	return o
}

// When is the date the reminder lists the item under.
func (d DebtItem) When() time.Time {
	if d.SessionDate != nil {
		return *d.SessionDate
	}
	return d.CreatedAt
}

type ClientDebt struct {
	ClientID   int64
	ClientName string
	Email      string
	Items      []DebtItem
	Total      decimal.Decimal
}

// AggregateDebts groups items per client, orders each client's items by date
// and sums the outstanding amounts. Clients come back ordered by id.
func AggregateDebts(items []DebtItem) []ClientDebt {
	byClient := make(map[int64]*ClientDebt)
	var order []int64
	for _, it := range items {
		cd, ok := byClient[it.ClientID]
		if !ok {
			cd = &ClientDebt{ClientID: it.ClientID, ClientName: it.ClientName, Email: it.ClientEmail, Total: decimal.Zero}
			byClient[it.ClientID] = cd
			order = append(order, it.ClientID)
		}
		cd.Items = append(cd.Items, it)
		cd.Total = cd.Total.Add(it.Outstanding())
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]ClientDebt, 0, len(order))
	for _, id := range order {
		cd := byClient[id]
		sort.SliceStable(cd.Items, func(i, j int) bool {
			return cd.Items[i].When().Before(cd.Items[j].When())
		})
		out = append(out, *cd)
	}
	return out
}
