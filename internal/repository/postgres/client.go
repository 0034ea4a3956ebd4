package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type clientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) repository.ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `id, account_id, name, COALESCE(email, ''), COALESCE(phone, ''), credit_balance, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.CreditBalance, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepository) GetByID(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND account_id = $2`
	c, err := scanClient(conn(ctx, r.db).QueryRowContext(ctx, query, clientID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("client", clientID)
	}
	return c, err
}

func (r *clientRepository) GetForUpdate(ctx context.Context, accountID, clientID int64) (*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND account_id = $2 FOR UPDATE`
	c, err := scanClient(conn(ctx, r.db).QueryRowContext(ctx, query, clientID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("client", clientID)
	}
	return c, err
}

func (r *clientRepository) IncreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	logger.EnterMethod("clientRepository.IncreaseCredit", "clientID", clientID, "amount", amount.String())

	query := `UPDATE clients SET credit_balance = credit_balance + $3, updated_at = NOW()
	          WHERE id = $1 AND account_id = $2 RETURNING credit_balance`
	logger.DatabaseCall("UPDATE", "clients.credit_balance", "clientID", clientID)

	var balance decimal.Decimal
	err := conn(ctx, r.db).QueryRowContext(ctx, query, clientID, accountID, amount).Scan(&balance)
	logger.DatabaseResult("UPDATE", 1, err, "clientID", clientID)
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.NotFound("client", clientID)
	}
	if err != nil {
		logger.ExitMethodWithError("clientRepository.IncreaseCredit", err, "clientID", clientID)
		return decimal.Zero, err
	}

	logger.ExitMethod("clientRepository.IncreaseCredit", "balance", balance.String())
	return balance, nil
}

// DecreaseCredit guards the balance inside the UPDATE itself so two concurrent
// withdrawals can never both pass a stale check.
func (r *clientRepository) DecreaseCredit(ctx context.Context, accountID, clientID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	logger.EnterMethod("clientRepository.DecreaseCredit", "clientID", clientID, "amount", amount.String())

	q := conn(ctx, r.db)
	query := `UPDATE clients SET credit_balance = credit_balance - $3, updated_at = NOW()
	          WHERE id = $1 AND account_id = $2 AND credit_balance >= $3 RETURNING credit_balance`
	logger.DatabaseCall("UPDATE", "clients.credit_balance", "clientID", clientID)

	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, query, clientID, accountID, amount).Scan(&balance)
	logger.DatabaseResult("UPDATE", 1, err, "clientID", clientID)
	if err == nil {
		logger.ExitMethod("clientRepository.DecreaseCredit", "balance", balance.String())
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.ExitMethodWithError("clientRepository.DecreaseCredit", err, "clientID", clientID)
		return decimal.Zero, err
	}

	// Either the client is missing or the balance is short; tell them apart.
	var available decimal.Decimal
	err = q.QueryRowContext(ctx, `SELECT credit_balance FROM clients WHERE id = $1 AND account_id = $2`, clientID, accountID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.NotFound("client", clientID)
	}
	if err == nil {
		err = &domain.InsufficientCreditError{ClientID: clientID, Available: available, Requested: amount}
	}
	logger.ExitMethodWithError("clientRepository.DecreaseCredit", err, "clientID", clientID)
	return decimal.Zero, err
}
