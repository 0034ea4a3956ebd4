package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"practice-ledger/internal/billing"
	"practice-ledger/internal/domain"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

// ProviderSelector picks the receipt provider configured for an account.
type ProviderSelector interface {
	ForAccount(ctx context.Context, account *domain.Account) (billing.Provider, error)
}

// errReceiptRecorded rolls back a self-issued number when another writer
// attached a receipt first.
var errReceiptRecorded = errors.New("receipt already recorded")

type receiptService struct {
	tx          repository.TxManager
	accountRepo repository.AccountRepository
	clientRepo  repository.ClientRepository
	sessionRepo repository.SessionRepository
	paymentRepo repository.PaymentRepository
	providers   ProviderSelector
	publisher   events.Publisher
	timeout     time.Duration
	inflight    singleflight.Group
}

func NewReceiptService(
	tx repository.TxManager,
	accountRepo repository.AccountRepository,
	clientRepo repository.ClientRepository,
	sessionRepo repository.SessionRepository,
	paymentRepo repository.PaymentRepository,
	providers ProviderSelector,
	publisher events.Publisher,
	timeout time.Duration,
) ReceiptService {
	return &receiptService{
		tx:          tx,
		accountRepo: accountRepo,
		clientRepo:  clientRepo,
		sessionRepo: sessionRepo,
		paymentRepo: paymentRepo,
		providers:   providers,
		publisher:   publisher,
		timeout:     timeout,
	}
}

func (s *receiptService) IssueReceipt(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	// a double submit from the UI and the retry job must not both reach the provider
	key := fmt.Sprintf("%d:%d", accountID, paymentID)
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		return s.issue(shared, accountID, paymentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Payment), nil
}

// IssueOnSettlement issues the receipt for a payment that just became paid.
// When the provider fails the client still gets a payment confirmation, without
// a receipt link; the retry job sends the receipt later.
func (s *receiptService) IssueOnSettlement(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	p, err := s.IssueReceipt(ctx, accountID, paymentID)
	var perr *domain.ProviderError
	if err != nil && errors.As(err, &perr) {
		s.confirmWithoutReceipt(ctx, accountID, paymentID)
	}
	return p, err
}

func (s *receiptService) confirmWithoutReceipt(ctx context.Context, accountID, paymentID int64) {
	p, err := s.paymentRepo.GetByID(ctx, accountID, paymentID)
	if err != nil {
		logger.Error("Failed to load payment for confirmation", "paymentID", paymentID, "error", err)
		return
	}
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		logger.Error("Failed to load account for confirmation", "accountID", accountID, "error", err)
		return
	}
	client, err := s.clientRepo.GetByID(ctx, accountID, p.ClientID)
	if err != nil {
		logger.Error("Failed to load client for confirmation", "clientID", p.ClientID, "error", err)
		return
	}
	if !client.HasEmail() {
		return
	}
	s.publish(ctx, events.NewEmail(confirmationEmail(account, client, p)))
}

func (s *receiptService) issue(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	logger.EnterMethod("receiptService.IssueReceipt", "accountID", accountID, "paymentID", paymentID)

	p, err := s.paymentRepo.GetByID(ctx, accountID, paymentID)
	if err != nil {
		logger.ExitMethodWithError("receiptService.IssueReceipt", err, "paymentID", paymentID)
		return nil, err
	}
	if p.HasReceipt {
		logger.ExitMethod("receiptService.IssueReceipt", "paymentID", paymentID, "skipped", "already issued")
		return p, nil
	}
	if !p.IsPaid() || p.IsAudit() || p.Type == domain.PaymentTypeAdvance {
		err := domain.NewValidationError("payment_id", "payment %d is not a settled charge", paymentID)
		logger.ExitMethodWithError("receiptService.IssueReceipt", err, "paymentID", paymentID)
		return nil, err
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRepo.GetByID(ctx, accountID, p.ClientID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.ForAccount(ctx, account)
	if err != nil {
		logger.ExitMethodWithError("receiptService.IssueReceipt", err, "paymentID", paymentID)
		return nil, err
	}

	req := billing.ReceiptRequest{
		AccountID:   accountID,
		PaymentID:   p.ID,
		ClientName:  client.Name,
		Email:       client.Email,
		Phone:       client.Phone,
		Amount:      p.Amount,
		Description: s.describe(ctx, p),
		Method:      p.Method,
		SendEmail:   client.HasEmail(),
	}

	var res *billing.ReceiptResult
	if provider.Name() == domain.BillingProviderSelf {
		p, res, err = s.issueSelf(ctx, provider, p, req)
	} else {
		p, res, err = s.issueExternal(ctx, provider, p, req)
	}
	if err != nil {
		logger.ExitMethodWithError("receiptService.IssueReceipt", err, "paymentID", paymentID)
		return nil, err
	}
	if res == nil {
		logger.ExitMethod("receiptService.IssueReceipt", "paymentID", paymentID, "skipped", "already issued")
		return p, nil
	}

	if client.HasEmail() && !res.Emailed {
		s.publish(ctx, events.NewEmail(receiptEmail(account, client, p)))
	}

	logger.ExitMethod("receiptService.IssueReceipt", "paymentID", p.ID, "number", p.ReceiptNumber)
	return p, nil
}

// issueSelf consumes the account counter and attaches the number in one
// transaction with the payment row locked, so a number is either recorded on
// the payment or never taken. A nil result means a receipt was already there.
func (s *receiptService) issueSelf(ctx context.Context, provider billing.Provider, p *domain.Payment, req billing.ReceiptRequest) (*domain.Payment, *billing.ReceiptResult, error) {
	var (
		locked *domain.Payment
		res    *billing.ReceiptResult
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		locked, err = s.paymentRepo.GetForUpdate(ctx, p.AccountID, p.ID)
		if err != nil {
			return err
		}
		if locked.HasReceipt {
			return nil
		}
		req.Amount = locked.Amount
		res, err = s.createReceipt(ctx, provider, req)
		if err != nil {
			return err
		}
		attached, err := s.paymentRepo.AttachReceipt(ctx, locked.ID, res.Number, res.URL)
		if err != nil {
			return err
		}
		if !attached {
			return errReceiptRecorded
		}
		return nil
	})
	if errors.Is(err, errReceiptRecorded) {
		logger.Warn("Receipt already recorded, counter rolled back", "paymentID", p.ID)
		current, err := s.paymentRepo.GetByID(ctx, p.AccountID, p.ID)
		return current, nil, err
	}
	if err != nil {
		return nil, nil, err
	}
	if locked.HasReceipt {
		return locked, nil, nil
	}
	locked.ReceiptNumber, locked.ReceiptURL, locked.HasReceipt = res.Number, res.URL, true
	return locked, res, nil
}

// issueExternal calls the provider outside any transaction; the provider's own
// document number is stored verbatim.
func (s *receiptService) issueExternal(ctx context.Context, provider billing.Provider, p *domain.Payment, req billing.ReceiptRequest) (*domain.Payment, *billing.ReceiptResult, error) {
	res, err := s.createReceipt(ctx, provider, req)
	if err != nil {
		return nil, nil, err
	}

	attached, err := s.paymentRepo.AttachReceipt(ctx, p.ID, res.Number, res.URL)
	if err != nil {
		logger.Error("Failed to record issued receipt", "paymentID", p.ID, "number", res.Number, "error", err)
		return nil, nil, err
	}
	if !attached {
		// someone else recorded a receipt in between; theirs stands
		logger.Warn("Receipt already recorded, discarding duplicate", "paymentID", p.ID, "number", res.Number)
		current, err := s.paymentRepo.GetByID(ctx, p.AccountID, p.ID)
		return current, nil, err
	}
	p.ReceiptNumber, p.ReceiptURL, p.HasReceipt = res.Number, res.URL, true
	return p, res, nil
}

func (s *receiptService) createReceipt(ctx context.Context, provider billing.Provider, req billing.ReceiptRequest) (*billing.ReceiptResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := provider.CreateReceipt(callCtx, req)
	if err != nil {
		var perr *domain.ProviderError
		if !errors.As(err, &perr) {
			err = &domain.ProviderError{Provider: string(provider.Name()), Op: "create_receipt", Err: err}
		}
		logger.Error("Receipt provider call failed", "accountID", req.AccountID, "paymentID", req.PaymentID,
			"provider", provider.Name(), "error", err)
		return nil, err
	}
	return res, nil
}

func (s *receiptService) describe(ctx context.Context, p *domain.Payment) string {
	if p.SessionID != nil {
		session, err := s.sessionRepo.GetByID(ctx, p.AccountID, *p.SessionID)
		if err == nil {
			return fmt.Sprintf("Session %s", session.StartsAt.Format("2006-01-02"))
		}
	}
	return fmt.Sprintf("Payment #%d", p.ID)
}

func (s *receiptService) publish(ctx context.Context, evs ...events.Event) {
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		logger.Error("Failed to publish events", "count", len(evs), "error", err)
	}
}

func (s *receiptService) RetryMissing(ctx context.Context, paidBefore time.Time, limit int) (int, int, error) {
	payments, err := s.paymentRepo.ListMissingReceipts(ctx, paidBefore, limit)
	if err != nil {
		return 0, 0, err
	}

	var issued, failed int
	for _, p := range payments {
		if ctx.Err() != nil {
			return issued, failed, ctx.Err()
		}
		if _, err := s.IssueReceipt(ctx, p.AccountID, p.ID); err != nil {
			failed++
			continue
		}
		issued++
	}
	logger.Info("Missing receipts retried", "candidates", len(payments), "issued", issued, "failed", failed)
	return issued, failed, nil
}

func receiptEmail(account *domain.Account, client *domain.Client, p *domain.Payment) events.Email {
	subject := fmt.Sprintf("Receipt %s from %s", p.ReceiptNumber, account.Name)
	text := fmt.Sprintf("Hello %s,\n\nThank you for your payment of %s.\nYour receipt %s is available at:\n%s\n\n%s",
		client.Name, p.Amount.StringFixed(2), p.ReceiptNumber, p.ReceiptURL, account.Name)
	return events.Email{
		AccountID: account.ID,
		ClientID:  client.ID,
		Kind:      domain.CommunicationKindReceipt,
		To:        client.Email,
		ToName:    client.Name,
		Subject:   subject,
		Text:      text,
	}
}

func confirmationEmail(account *domain.Account, client *domain.Client, p *domain.Payment) events.Email {
	subject := fmt.Sprintf("Payment received by %s", account.Name)
	text := fmt.Sprintf("Hello %s,\n\nThank you for your payment of %s.\nYour receipt will follow in a separate email.\n\n%s",
		client.Name, p.Amount.StringFixed(2), account.Name)
	return events.Email{
		AccountID: account.ID,
		ClientID:  client.ID,
		Kind:      domain.CommunicationKindPaymentConfirmation,
		To:        client.Email,
		ToName:    client.Name,
		Subject:   subject,
		Text:      text,
	}
}
