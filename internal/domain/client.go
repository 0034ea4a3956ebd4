package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	CreditBalance decimal.Decimal `json:"credit_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (c *Client) HasEmail() bool {
	return c.Email != ""
}
