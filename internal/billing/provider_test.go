package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/domain"
)

type MockDocumentClient struct {
	mock.Mock
}

func (m *MockDocumentClient) CreateDocument(ctx context.Context, req billing.DocumentRequest) (*billing.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Document), args.Error(1)
}

type stubProvider struct{ name domain.BillingProvider }

func (s stubProvider) Name() domain.BillingProvider { return s.name }
func (s stubProvider) CreateReceipt(ctx context.Context, req billing.ReceiptRequest) (*billing.ReceiptResult, error) {
	return &billing.ReceiptResult{Number: string(s.name)}, nil
}

func TestDocumentProvider_CreateReceipt(t *testing.T) {
	client := new(MockDocumentClient)
	p := billing.NewDocumentProvider(domain.BillingProviderLedgerly, client)

	client.On("CreateDocument", mock.Anything, mock.MatchedBy(func(r billing.DocumentRequest) bool {
		return r.Type == billing.DocumentReceipt && r.Reference == "payment-42" && r.SendEmail
	})).Return(&billing.Document{ID: "d1", Number: "10042", URL: "https://x/d1", PDFURL: "https://x/d1.pdf"}, nil)

	res, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{
		PaymentID: 42,
		Email:     "c@example.com",
		Amount:    decimal.NewFromInt(100),
		SendEmail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "10042", res.Number)
	assert.Equal(t, "https://x/d1.pdf", res.URL)
	assert.True(t, res.Emailed)
	client.AssertExpectations(t)
}

func TestDocumentProvider_FallsBackToDocumentID(t *testing.T) {
	client := new(MockDocumentClient)
	p := billing.NewDocumentProvider(domain.BillingProviderTillpoint, client)
	client.On("CreateDocument", mock.Anything, mock.Anything).Return(&billing.Document{ID: "tp_1", URL: "https://t/1"}, nil)

	res, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{PaymentID: 1, SendEmail: true})
	require.NoError(t, err)
	assert.Equal(t, "tp_1", res.Number)
	assert.Equal(t, "https://t/1", res.URL)
	assert.False(t, res.Emailed, "no email address on file")
}

func TestDocumentProvider_WrapsErrors(t *testing.T) {
	client := new(MockDocumentClient)
	p := billing.NewDocumentProvider(domain.BillingProviderLedgerly, client)
	client.On("CreateDocument", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := p.CreateReceipt(context.Background(), billing.ReceiptRequest{PaymentID: 1})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ledgerly", perr.Provider)
}

func TestRegistry_ForAccount(t *testing.T) {
	builds := 0
	r := billing.NewRegistry()
	r.Register(domain.BillingProviderSelf, func(a *domain.Account) (billing.Provider, error) {
		builds++
		return stubProvider{domain.BillingProviderSelf}, nil
	})
	r.Register(domain.BillingProviderLedgerly, func(a *domain.Account) (billing.Provider, error) {
		if a.ProviderAPIKey == "" {
			return nil, errors.New("missing api key")
		}
		return stubProvider{domain.BillingProviderLedgerly}, nil
	})
	ctx := context.Background()

	acct := &domain.Account{ID: 1}
	p, err := r.ForAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, domain.BillingProviderSelf, p.Name())

	_, err = r.ForAccount(ctx, &domain.Account{ID: 1, BillingProvider: domain.BillingProviderSelf})
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	_, err = r.ForAccount(ctx, &domain.Account{ID: 2, BillingProvider: domain.BillingProviderLedgerly})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "configure", perr.Op)

	_, err = r.ForAccount(ctx, &domain.Account{ID: 3, BillingProvider: domain.BillingProviderTillpoint})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "select", perr.Op)
}

// keyedProvider remembers the key it was built with.
type keyedProvider struct {
	stubProvider
	key string
}

func TestRegistry_ForAccount_RebuildsOnSettingsChange(t *testing.T) {
	builds := 0
	r := billing.NewRegistry()
	r.Register(domain.BillingProviderLedgerly, func(a *domain.Account) (billing.Provider, error) {
		builds++
		return keyedProvider{stubProvider{domain.BillingProviderLedgerly}, a.ProviderAPIKey}, nil
	})
	ctx := context.Background()
	acct := &domain.Account{ID: 7, Name: "Harbor Physio", BillingProvider: domain.BillingProviderLedgerly,
		ProviderAPIKey: "old-key", ProviderAPISecret: "s"}

	p, err := r.ForAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "old-key", p.(keyedProvider).key)

	_, err = r.ForAccount(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	rotated := *acct
	rotated.ProviderAPIKey = "new-key"
	p, err = r.ForAccount(ctx, &rotated)
	require.NoError(t, err)
	assert.Equal(t, "new-key", p.(keyedProvider).key)
	assert.Equal(t, 2, builds)

	renamed := rotated
	renamed.Name = "Harbor Physio & Rehab"
	_, err = r.ForAccount(ctx, &renamed)
	require.NoError(t, err)
	assert.Equal(t, 3, builds)
}
