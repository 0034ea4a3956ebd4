// Package billing issues receipts for settled payments, either locally or
// through an external document provider chosen per account.
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
)

// ReceiptRequest describes one settled payment that needs a receipt.
type ReceiptRequest struct {
	AccountID   int64
	PaymentID   int64
	ClientName  string
	Email       string
	Phone       string
	Amount      decimal.Decimal
	Description string
	Method      domain.PaymentMethod
	SendEmail   bool
}

// ReceiptResult is what gets recorded on the payment.
type ReceiptResult struct {
	Number string
	URL    string
	// Emailed is true when the provider already mailed the client a copy
	Emailed bool
}

// Provider issues receipts. Exactly one implementation serves an account.
type Provider interface {
	Name() domain.BillingProvider
	CreateReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptResult, error)
}

// DocumentType is the kind of document requested from an external provider.
type DocumentType string

const (
	DocumentReceipt        DocumentType = "receipt"
	DocumentInvoiceReceipt DocumentType = "invoice_receipt"
)

// DocumentRequest is the provider-neutral document body sent to external APIs.
type DocumentRequest struct {
	Type        DocumentType
	ClientName  string
	Email       string
	Phone       string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Method      domain.PaymentMethod
	SendEmail   bool
	// Reference is echoed back in the provider's document.created webhook
	Reference string
}

type Document struct {
	ID     string
	Number string
	URL    string
	PDFURL string
}

// DocumentClient is the HTTP surface of one external provider.
type DocumentClient interface {
	CreateDocument(ctx context.Context, req DocumentRequest) (*Document, error)
}

// DocumentProvider adapts an external DocumentClient to Provider.
type DocumentProvider struct {
	name   domain.BillingProvider
	client DocumentClient
}

func NewDocumentProvider(name domain.BillingProvider, client DocumentClient) *DocumentProvider {
	return &DocumentProvider{name: name, client: client}
}

func (p *DocumentProvider) Name() domain.BillingProvider { return p.name }

func (p *DocumentProvider) CreateReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptResult, error) {
	doc, err := p.client.CreateDocument(ctx, DocumentRequest{
		Type:        DocumentReceipt,
		ClientName:  req.ClientName,
		Email:       req.Email,
		Phone:       req.Phone,
		Amount:      req.Amount,
		Currency:    Currency,
		Description: req.Description,
		Method:      req.Method,
		SendEmail:   req.SendEmail && req.Email != "",
		Reference:   fmt.Sprintf("payment-%d", req.PaymentID),
	})
	if err != nil {
		return nil, &domain.ProviderError{Provider: string(p.name), Op: "create_document", Err: err}
	}

	number := doc.Number
	if number == "" {
		number = doc.ID
	}
	url := doc.PDFURL
	if url == "" {
		url = doc.URL
	}
	return &ReceiptResult{
		Number:  number,
		URL:     url,
		Emailed: req.SendEmail && req.Email != "",
	}, nil
}

// Currency is the ISO code put on external documents.
const Currency = "ILS"
