// Package selfissued numbers and renders receipts locally for accounts
// without an external billing provider.
package selfissued

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"time"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/storage"
)

// Counter hands out the next receipt number of an account. The increment
// must be atomic so that concurrent callers never observe the same value.
type Counter interface {
	NextReceiptNumber(ctx context.Context, accountID int64) (int, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Provider struct {
	account *domain.Account
	counter Counter
	tx      TxRunner
	store   storage.DocumentStore
	now     func() time.Time
}

func New(account *domain.Account, counter Counter, tx TxRunner, store storage.DocumentStore) *Provider {
	return &Provider{
		account: account,
		counter: counter,
		tx:      tx,
		store:   store,
		now:     time.Now,
	}
}

func (p *Provider) Name() domain.BillingProvider { return domain.BillingProviderSelf }

// CreateReceipt consumes a number and stores the rendered document in one
// transaction. If rendering or storage fails the increment rolls back.
func (p *Provider) CreateReceipt(ctx context.Context, req billing.ReceiptRequest) (*billing.ReceiptResult, error) {
	issuedAt := p.now().UTC()
	var result *billing.ReceiptResult

	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := p.counter.NextReceiptNumber(ctx, p.account.ID)
		if err != nil {
			return fmt.Errorf("next receipt number: %w", err)
		}
		number := domain.FormatReceiptNumber(issuedAt.Year(), n)
		key := fmt.Sprintf("%d/%s.html", p.account.ID, number)

		doc := render(p.account, req, number, issuedAt)
		if err := p.store.Save(ctx, key, "text/html; charset=utf-8", bytes.NewReader(doc)); err != nil {
			return fmt.Errorf("store receipt: %w", err)
		}
		result = &billing.ReceiptResult{Number: number, URL: p.store.DownloadURL(key)}
		return nil
	})
	if err != nil {
		return nil, &domain.ProviderError{Provider: string(domain.BillingProviderSelf), Op: "create_receipt", Err: err}
	}

	logger.InfoContext(ctx, "Receipt issued", "accountID", p.account.ID, "paymentID", req.PaymentID, "number", result.Number)
	return result, nil
}

func render(account *domain.Account, req billing.ReceiptRequest, number string, issuedAt time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Receipt %s</title></head><body>\n", html.EscapeString(number))
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(account.Name))
	fmt.Fprintf(&b, "<h2>Receipt %s</h2>\n", html.EscapeString(number))
	fmt.Fprintf(&b, "<p>Date: %s</p>\n", issuedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "<p>Received from: %s</p>\n", html.EscapeString(req.ClientName))
	if req.Description != "" {
		fmt.Fprintf(&b, "<p>For: %s</p>\n", html.EscapeString(req.Description))
	}
	fmt.Fprintf(&b, "<p>Amount: %s</p>\n", req.Amount.StringFixed(2))
	if req.Method != "" {
		fmt.Fprintf(&b, "<p>Payment method: %s</p>\n", html.EscapeString(string(req.Method)))
	}
	b.WriteString("</body></html>\n")
	return b.Bytes()
}
