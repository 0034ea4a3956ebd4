package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type PaymentType string

const (
	PaymentTypeFull    PaymentType = "FULL"
	PaymentTypePartial PaymentType = "PARTIAL"
	PaymentTypeAdvance PaymentType = "ADVANCE"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeFull, PaymentTypePartial, PaymentTypeAdvance:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCheck    PaymentMethod = "CHECK"
	PaymentMethodCredit   PaymentMethod = "CREDIT"
	PaymentMethodOther    PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer,
		PaymentMethodCheck, PaymentMethodCredit, PaymentMethodOther:
		return true
	}
	return false
}

// ParsePaymentMethod accepts the lower-case names used by the web client.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Payment is one ledger row. Amount is the cumulative sum received so far,
// ExpectedAmount the total owed for the charge.
type Payment struct {
	ID               int64           `json:"id"`
	AccountID        int64           `json:"account_id"`
	ClientID         int64           `json:"client_id"`
	SessionID        *int64          `json:"session_id,omitempty"`
	ParentPaymentID  *int64          `json:"parent_payment_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	CreditUsed       decimal.Decimal `json:"credit_used"`
	Status           PaymentStatus   `json:"status"`
	Type             PaymentType     `json:"payment_type"`
	Method           PaymentMethod   `json:"method"`
	ReceiptNumber    string          `json:"receipt_number,omitempty"`
	ReceiptURL       string          `json:"receipt_url,omitempty"`
	HasReceipt       bool            `json:"has_receipt"`
	CorrelationToken string          `json:"correlation_token"`
	Notes            string          `json:"notes,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DeriveStatus is the single rule deciding whether a charge is settled.
// Overpayment counts as paid.
func DeriveStatus(amount, expected decimal.Decimal) PaymentStatus {
	if amount.GreaterThanOrEqual(expected) {
		return PaymentStatusPaid
	}
	return PaymentStatusPending
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// IsAudit reports whether the row only records an instalment of its parent.
func (p *Payment) IsAudit() bool {
	return p.ParentPaymentID != nil
}

// Debt is what is still owed on the charge, never negative.
func (p *Payment) Debt() decimal.Decimal {
	d := p.ExpectedAmount.Sub(p.Amount)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Apply adds money to the row and re-derives the status. A paid row stays paid.
// It returns true when this call moved the row into PAID.
func (p *Payment) Apply(increment decimal.Decimal, method PaymentMethod, now time.Time) bool {
	wasPaid := p.IsPaid()
	p.Amount = p.Amount.Add(increment)
	p.UpdatedAt = now
	if wasPaid {
		return false
	}
	p.Status = DeriveStatus(p.Amount, p.ExpectedAmount)
	if p.IsPaid() {
		paidAt := now
		p.PaidAt = &paidAt
		if method != "" {
			p.Method = method
		}
		return true
	}
	return false
}

// AuditChild builds the history row recording one instalment on p. It never
// carries the session id, which stays unique to the parent.
func (p *Payment) AuditChild(increment decimal.Decimal, method PaymentMethod, now time.Time) *Payment {
	parentID := p.ID
	paidAt := now
	return &Payment{
		AccountID:       p.AccountID,
		ClientID:        p.ClientID,
		ParentPaymentID: &parentID,
		Amount:          increment,
		ExpectedAmount:  increment,
		CreditUsed:      decimal.Zero,
		Status:          PaymentStatusPaid,
		Type:            PaymentTypePartial,
		Method:          method,
		PaidAt:          &paidAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AppendNote adds a timestamped line to the payment's free-form notes.
func (p *Payment) AppendNote(note string, now time.Time) {
	line := fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), note)
	if p.Notes == "" {
		p.Notes = line
		return
	}
	p.Notes = p.Notes + "\n" + line
}

// FormatReceiptNumber renders a self-issued receipt number as {year}-{counter:04d}.
func FormatReceiptNumber(year, counter int) string {
	return fmt.Sprintf("%d-%04d", year, counter)
}
