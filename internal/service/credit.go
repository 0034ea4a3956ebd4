package service

import (
	"context"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

// creditService owns the client's prepaid balance. Both mutations are single
// guarded statements and join the caller's transaction when there is one.
type creditService struct {
	clientRepo repository.ClientRepository
}

func NewCreditService(clientRepo repository.ClientRepository) CreditService {
	return &creditService{clientRepo: clientRepo}
}

func (s *creditService) Increase(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	logger.EnterMethod("creditService.Increase", "accountID", accountID, "clientID", clientID, "amount", amount)
	if !amount.IsPositive() {
		err := domain.NewValidationError("amount", "must be greater than zero")
		logger.ExitMethodWithError("creditService.Increase", err, "clientID", clientID)
		return decimal.Zero, err
	}

	balance, err := s.clientRepo.IncreaseCredit(ctx, accountID, clientID, amount)
	if err != nil {
		logger.ExitMethodWithError("creditService.Increase", err, "clientID", clientID)
		return decimal.Zero, err
	}
	logger.ExitMethod("creditService.Increase", "clientID", clientID, "balance", balance)
	return balance, nil
}

func (s *creditService) Decrease(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	logger.EnterMethod("creditService.Decrease", "accountID", accountID, "clientID", clientID, "amount", amount)
	if !amount.IsPositive() {
		err := domain.NewValidationError("amount", "must be greater than zero")
		logger.ExitMethodWithError("creditService.Decrease", err, "clientID", clientID)
		return decimal.Zero, err
	}

	balance, err := s.clientRepo.DecreaseCredit(ctx, accountID, clientID, amount)
	if err != nil {
		logger.ExitMethodWithError("creditService.Decrease", err, "clientID", clientID)
		return decimal.Zero, err
	}
	logger.ExitMethod("creditService.Decrease", "clientID", clientID, "balance", balance)
	return balance, nil
}

func (s *creditService) Balance(ctx context.Context, accountID, clientID int64) (decimal.Decimal, error) {
	client, err := s.clientRepo.GetByID(ctx, accountID, clientID)
	if err != nil {
		return decimal.Zero, err
	}
	return client.CreditBalance, nil
}
