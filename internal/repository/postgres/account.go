package postgres

import (
	"context"
	"database/sql"
	"errors"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, owner_user_id, name, email, billing_provider,
	COALESCE(provider_api_key, ''), COALESCE(provider_api_secret, ''), COALESCE(provider_company_id, ''),
	next_receipt_number, subscription_status, reminders_enabled, reminder_day_of_month, reminder_min_debt,
	created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Name, &a.Email, &a.BillingProvider,
		&a.ProviderAPIKey, &a.ProviderAPISecret, &a.ProviderCompanyID,
		&a.NextReceiptNumber, &a.SubscriptionStatus, &a.RemindersEnabled, &a.ReminderDayOfMonth, &a.ReminderMinDebt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("account", id)
	}
	return a, err
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	a, err := scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("account", email)
	}
	return a, err
}

func (r *accountRepository) ListWithRemindersEnabled(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE reminders_enabled = TRUE ORDER BY id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// NextReceiptNumber bumps the counter in a single statement so concurrent
// issuers serialize on the account row.
func (r *accountRepository) NextReceiptNumber(ctx context.Context, accountID int64) (int, error) {
	logger.EnterMethod("accountRepository.NextReceiptNumber", "accountID", accountID)

	query := `UPDATE accounts SET next_receipt_number = next_receipt_number + 1, updated_at = NOW()
	          WHERE id = $1 RETURNING next_receipt_number - 1`
	logger.DatabaseCall("UPDATE", "accounts.next_receipt_number", "accountID", accountID)

	var number int
	err := conn(ctx, r.db).QueryRowContext(ctx, query, accountID).Scan(&number)
	logger.DatabaseResult("UPDATE", 1, err, "accountID", accountID)
	if errors.Is(err, sql.ErrNoRows) {
		err = domain.NotFound("account", accountID)
	}
	if err != nil {
		logger.ExitMethodWithError("accountRepository.NextReceiptNumber", err, "accountID", accountID)
		return 0, err
	}

	logger.ExitMethod("accountRepository.NextReceiptNumber", "number", number)
	return number, nil
}

func (r *accountRepository) UpdateSubscriptionStatus(ctx context.Context, accountID int64, status domain.SubscriptionStatus) error {
	query := `UPDATE accounts SET subscription_status = $2, updated_at = NOW() WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, accountID, status)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("account", accountID)
	}
	return nil
}
