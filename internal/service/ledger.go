package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type ledgerService struct {
	tx          repository.TxManager
	clientRepo  repository.ClientRepository
	sessionRepo repository.SessionRepository
	paymentRepo repository.PaymentRepository
	credit      CreditService
	receipts    ReceiptService
	now         func() time.Time
}

func NewLedgerService(
	tx repository.TxManager,
	clientRepo repository.ClientRepository,
	sessionRepo repository.SessionRepository,
	paymentRepo repository.PaymentRepository,
	credit CreditService,
	receipts ReceiptService,
) LedgerService {
	return &ledgerService{
		tx:          tx,
		clientRepo:  clientRepo,
		sessionRepo: sessionRepo,
		paymentRepo: paymentRepo,
		credit:      credit,
		receipts:    receipts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *ledgerService) Create(ctx context.Context, accountID int64, in CreatePaymentInput) (*domain.Payment, error) {
	logger.EnterMethod("ledgerService.Create", "accountID", accountID, "clientID", in.ClientID, "type", in.Type)

	if err := s.validateCreate(&in); err != nil {
		logger.ExitMethodWithError("ledgerService.Create", err, "clientID", in.ClientID)
		return nil, err
	}

	now := s.now()
	p := &domain.Payment{
		AccountID:        accountID,
		ClientID:         in.ClientID,
		SessionID:        in.SessionID,
		Amount:           in.Amount,
		ExpectedAmount:   in.ExpectedAmount,
		CreditUsed:       in.CreditUsed,
		Type:             in.Type,
		Method:           in.Method,
		CorrelationToken: uuid.NewString(),
		Notes:            in.Notes,
		CreatedAt:        now,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.clientRepo.GetByID(ctx, accountID, in.ClientID); err != nil {
			return err
		}

		if in.SessionID != nil {
			session, err := s.sessionRepo.GetByID(ctx, accountID, *in.SessionID)
			if err != nil {
				return err
			}
			if session.ClientID != in.ClientID {
				return domain.NewValidationError("session_id", "session belongs to another client")
			}
			if p.ExpectedAmount.IsZero() {
				p.ExpectedAmount = session.Price
			}
			exists, err := s.paymentRepo.ExistsForSession(ctx, session.ID)
			if err != nil {
				return err
			}
			if exists {
				return domain.NewValidationError("session_id", "session already has a payment")
			}
		}
		if p.Type != domain.PaymentTypeAdvance && !p.ExpectedAmount.IsPositive() {
			return domain.NewValidationError("expected_amount", "must be greater than zero")
		}

		if p.CreditUsed.IsPositive() {
			if _, err := s.credit.Decrease(ctx, accountID, in.ClientID, p.CreditUsed); err != nil {
				return err
			}
		}

		if p.Type == domain.PaymentTypeAdvance {
			// the row is only a record; the money goes to the credit bank
			if _, err := s.credit.Increase(ctx, accountID, in.ClientID, p.Amount); err != nil {
				return err
			}
			p.ExpectedAmount = p.Amount
		}

		p.Status = domain.DeriveStatus(p.Amount, p.ExpectedAmount)
		if p.IsPaid() {
			paidAt := now
			p.PaidAt = &paidAt
		}
		return s.paymentRepo.Create(ctx, p)
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerService.Create", err, "clientID", in.ClientID)
		return nil, err
	}

	if p.IsPaid() && p.Type != domain.PaymentTypeAdvance {
		s.issueReceipt(ctx, p, true)
	}

	logger.ExitMethod("ledgerService.Create", "paymentID", p.ID, "status", p.Status)
	return p, nil
}

func (s *ledgerService) validateCreate(in *CreatePaymentInput) error {
	if in.ClientID <= 0 {
		return domain.NewValidationError("client_id", "is required")
	}
	if !in.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	if in.CreditUsed.IsNegative() {
		return domain.NewValidationError("credit_used", "cannot be negative")
	}
	if in.CreditUsed.GreaterThan(in.Amount) {
		return domain.NewValidationError("credit_used", "cannot exceed the amount")
	}
	if in.Method == "" && in.CreditUsed.Equal(in.Amount) {
		in.Method = domain.PaymentMethodCredit
	}
	if !in.Method.Valid() {
		return domain.NewValidationError("method", "unknown payment method %q", in.Method)
	}
	if in.ExpectedAmount.IsNegative() {
		return domain.NewValidationError("expected_amount", "cannot be negative")
	}

	switch in.Type {
	case "":
		if in.ExpectedAmount.IsPositive() && in.Amount.LessThan(in.ExpectedAmount) {
			in.Type = domain.PaymentTypePartial
		} else {
			in.Type = domain.PaymentTypeFull
		}
	case domain.PaymentTypeAdvance:
		if in.SessionID != nil {
			return domain.NewValidationError("session_id", "advance payments cannot be linked to a session")
		}
		if in.CreditUsed.IsPositive() {
			return domain.NewValidationError("credit_used", "advance payments cannot be paid from credit")
		}
	default:
		if !in.Type.Valid() {
			return domain.NewValidationError("payment_type", "unknown payment type %q", in.Type)
		}
	}
	return nil
}

func (s *ledgerService) ApplyPayment(ctx context.Context, accountID, paymentID int64, in ApplyPaymentInput) (*domain.Payment, error) {
	logger.EnterMethod("ledgerService.ApplyPayment", "accountID", accountID, "paymentID", paymentID, "amount", in.AdditionalAmount)

	if in.AdditionalAmount.IsNegative() || (in.AdditionalAmount.IsZero() && !in.IssueReceipt) {
		err := domain.NewValidationError("additional_amount", "must be greater than zero")
		logger.ExitMethodWithError("ledgerService.ApplyPayment", err, "paymentID", paymentID)
		return nil, err
	}
	if in.Method != "" && !in.Method.Valid() {
		err := domain.NewValidationError("method", "unknown payment method %q", in.Method)
		logger.ExitMethodWithError("ledgerService.ApplyPayment", err, "paymentID", paymentID)
		return nil, err
	}

	var (
		p          *domain.Payment
		becamePaid bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.paymentRepo.GetForUpdate(ctx, accountID, paymentID)
		if err != nil {
			return err
		}
		if p.IsAudit() {
			return domain.NewValidationError("payment_id", "audit entries cannot be modified")
		}
		if p.Type == domain.PaymentTypeAdvance {
			return domain.NewValidationError("payment_id", "advance payments cannot be topped up")
		}
		if in.AdditionalAmount.IsZero() {
			return nil
		}
		becamePaid, err = applyIncrement(ctx, s.paymentRepo, p, in.AdditionalAmount, in.Method, s.now())
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerService.ApplyPayment", err, "paymentID", paymentID)
		return nil, err
	}

	if becamePaid || (in.IssueReceipt && p.IsPaid() && !p.HasReceipt) {
		s.issueReceipt(ctx, p, becamePaid)
	}

	logger.ExitMethod("ledgerService.ApplyPayment", "paymentID", p.ID, "amount", p.Amount, "status", p.Status)
	return p, nil
}

// applyIncrement adds money to a locked payment. When the row already holds
// money, the instalment is recorded as an audit child first. The caller owns
// the transaction.
func applyIncrement(ctx context.Context, payments repository.PaymentRepository, p *domain.Payment, increment decimal.Decimal, method domain.PaymentMethod, now time.Time) (bool, error) {
	if p.Amount.IsPositive() {
		if method == "" {
			method = p.Method
		}
		if err := payments.Create(ctx, p.AuditChild(increment, method, now)); err != nil {
			return false, fmt.Errorf("record instalment: %w", err)
		}
	}
	becamePaid := p.Apply(increment, method, now)
	if err := payments.UpdateProgress(ctx, p); err != nil {
		return false, err
	}
	return becamePaid, nil
}

func (s *ledgerService) DistributeLumpPayment(ctx context.Context, accountID int64, in LumpPaymentInput) (*LumpPaymentReport, error) {
	logger.EnterMethod("ledgerService.DistributeLumpPayment", "accountID", accountID, "clientID", in.ClientID,
		"total", in.TotalAmount, "mode", in.Mode, "payments", len(in.PaymentIDs))

	ids, err := validateLump(&in)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.DistributeLumpPayment", err, "clientID", in.ClientID)
		return nil, err
	}

	report := &LumpPaymentReport{ClientID: in.ClientID, CreditUsed: in.CreditUsed}
	var settled []*domain.Payment

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// concurrent distributions for one client queue up here
		if _, err := s.clientRepo.GetForUpdate(ctx, accountID, in.ClientID); err != nil {
			return err
		}

		payments, err := s.paymentRepo.LockForClient(ctx, accountID, in.ClientID, ids)
		if err != nil {
			return err
		}
		if len(payments) != len(ids) {
			return domain.NotFound("payment", missingIDs(ids, payments))
		}
		for _, p := range payments {
			if p.IsAudit() || p.Type == domain.PaymentTypeAdvance {
				return domain.NewValidationError("payment_ids", "payment %d is not a charge", p.ID)
			}
			if p.IsPaid() {
				return domain.NewValidationError("payment_ids", "payment %d is already paid", p.ID)
			}
		}

		if in.CreditUsed.IsPositive() {
			if _, err := s.credit.Decrease(ctx, accountID, in.ClientID, in.CreditUsed); err != nil {
				return err
			}
		}

		allocations, remaining := domain.DistributeFIFO(payments, in.TotalAmount, in.Method, s.now())
		byID := make(map[int64]*domain.Payment, len(payments))
		for _, p := range payments {
			byID[p.ID] = p
		}
		for _, a := range allocations {
			p := byID[a.PaymentID]
			if err := s.paymentRepo.UpdateProgress(ctx, p); err != nil {
				return err
			}
			report.TotalPaid = report.TotalPaid.Add(a.Applied)
			if a.BecamePaid {
				settled = append(settled, p)
			}
		}
		report.Allocations = allocations
		report.Remaining = remaining
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerService.DistributeLumpPayment", err, "clientID", in.ClientID)
		return nil, err
	}

	if in.Mode == domain.LumpModeFull && report.Remaining.GreaterThan(domain.RemainderTolerance) {
		report.Warning = &domain.ConsistencyWarning{
			ClientID:  in.ClientID,
			Remaining: report.Remaining,
			Message:   fmt.Sprintf("lump payment exceeded the selected debts by %s", report.Remaining.StringFixed(2)),
		}
		logger.Warn("Lump payment total does not match debts", "accountID", accountID, "clientID", in.ClientID,
			"total", in.TotalAmount, "remaining", report.Remaining)
	}

	for _, p := range settled {
		s.issueReceipt(ctx, p, true)
	}

	logger.ExitMethod("ledgerService.DistributeLumpPayment", "clientID", in.ClientID,
		"totalPaid", report.TotalPaid, "remaining", report.Remaining, "settled", len(settled))
	return report, nil
}

func validateLump(in *LumpPaymentInput) ([]int64, error) {
	if in.ClientID <= 0 {
		return nil, domain.NewValidationError("client_id", "is required")
	}
	if len(in.PaymentIDs) == 0 {
		return nil, domain.NewValidationError("payment_ids", "at least one payment is required")
	}
	if !in.TotalAmount.IsPositive() {
		return nil, domain.NewValidationError("total_amount", "must be greater than zero")
	}
	if in.Mode == "" {
		in.Mode = domain.LumpModeFull
	}
	if !in.Mode.Valid() {
		return nil, domain.NewValidationError("mode", "unknown mode %q", in.Mode)
	}
	if in.CreditUsed.IsNegative() || in.CreditUsed.GreaterThan(in.TotalAmount) {
		return nil, domain.NewValidationError("credit_used", "must be between zero and the total amount")
	}
	if in.Method == "" && in.CreditUsed.Equal(in.TotalAmount) {
		in.Method = domain.PaymentMethodCredit
	}
	if !in.Method.Valid() {
		return nil, domain.NewValidationError("method", "unknown payment method %q", in.Method)
	}

	seen := make(map[int64]bool, len(in.PaymentIDs))
	ids := make([]int64, 0, len(in.PaymentIDs))
	for _, id := range in.PaymentIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func missingIDs(want []int64, got []*domain.Payment) []int64 {
	found := make(map[int64]bool, len(got))
	for _, p := range got {
		found[p.ID] = true
	}
	var missing []int64
	for _, id := range want {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// issueReceipt runs after commit; a failure leaves has_receipt false for the
// retry job. settled marks the transition into PAID.
func (s *ledgerService) issueReceipt(ctx context.Context, p *domain.Payment, settled bool) {
	issue := s.receipts.IssueReceipt
	if settled {
		issue = s.receipts.IssueOnSettlement
	}
	updated, err := issue(ctx, p.AccountID, p.ID)
	if err != nil {
		logger.Warn("Receipt issuance failed", "accountID", p.AccountID, "paymentID", p.ID, "error", err)
		return
	}
	p.ReceiptNumber = updated.ReceiptNumber
	p.ReceiptURL = updated.ReceiptURL
	p.HasReceipt = updated.HasReceipt
}

func (s *ledgerService) GetPayment(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	return s.paymentRepo.GetByID(ctx, accountID, paymentID)
}

func (s *ledgerService) ListClientPayments(ctx context.Context, accountID, clientID int64, includeAudit bool) ([]domain.Payment, error) {
	if _, err := s.clientRepo.GetByID(ctx, accountID, clientID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByClient(ctx, accountID, clientID, includeAudit)
}

// GetClientDebt sums pending charges and billable sessions that never got a
// payment row.
func (s *ledgerService) GetClientDebt(ctx context.Context, accountID, clientID int64) (*domain.ClientDebt, error) {
	client, err := s.clientRepo.GetByID(ctx, accountID, clientID)
	if err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.ListByClient(ctx, accountID, clientID, false)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessionRepo.ListUnpaidBillable(ctx, accountID, clientID)
	if err != nil {
		return nil, err
	}

	var items []domain.DebtItem
	for i := range payments {
		p := &payments[i]
		if p.IsPaid() || p.Type == domain.PaymentTypeAdvance {
			continue
		}
		id := p.ID
		items = append(items, domain.DebtItem{
			ClientID:       clientID,
			ClientName:     client.Name,
			ClientEmail:    client.Email,
			PaymentID:      &id,
			SessionID:      p.SessionID,
			ExpectedAmount: p.ExpectedAmount,
			Amount:         p.Amount,
			CreatedAt:      p.CreatedAt,
		})
	}
	for i := range sessions {
		sess := &sessions[i]
		id, startsAt := sess.ID, sess.StartsAt
		items = append(items, domain.DebtItem{
			ClientID:       clientID,
			ClientName:     client.Name,
			ClientEmail:    client.Email,
			SessionID:      &id,
			SessionDate:    &startsAt,
			ExpectedAmount: sess.Price,
			Amount:         decimal.Zero,
			CreatedAt:      sess.CreatedAt,
		})
	}

	debts := domain.AggregateDebts(items)
	if len(debts) == 0 {
		return &domain.ClientDebt{ClientID: clientID, ClientName: client.Name, Email: client.Email, Total: decimal.Zero}, nil
	}
	return &debts[0], nil
}
