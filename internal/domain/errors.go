package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrWebhookAuth = errors.New("webhook signature verification failed")
)

// ValidationError is returned to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// InsufficientCreditError carries the balance the client actually has.
type InsufficientCreditError struct {
	ClientID  int64
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: available %s, requested %s", e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// ProviderError is an external billing call failure. It never fails the
// ledger operation that triggered it.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConsistencyWarning flags a lump payment whose total did not match the debts
// it was meant to settle. It is reported, never returned as an error.
type ConsistencyWarning struct {
	ClientID  int64           `json:"client_id"`
	Remaining decimal.Decimal `json:"remaining"`
	Message   string          `json:"message"`
}

func (w *ConsistencyWarning) Error() string {
	return w.Message
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsInsufficientCredit(err error) bool {
	var ic *InsufficientCreditError
	return errors.As(err, &ic)
}
