package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
)

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, account_id, client_id, session_id, parent_payment_id, amount, expected_amount, credit_used,
	status, payment_type, method, COALESCE(receipt_number, ''), COALESCE(receipt_url, ''), has_receipt,
	COALESCE(correlation_token, ''), COALESCE(notes, ''), paid_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	var p domain.Payment
	var sessionID, parentID sql.NullInt64
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.AccountID, &p.ClientID, &sessionID, &parentID, &p.Amount, &p.ExpectedAmount, &p.CreditUsed,
		&p.Status, &p.Type, &p.Method, &p.ReceiptNumber, &p.ReceiptURL, &p.HasReceipt,
		&p.CorrelationToken, &p.Notes, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.SessionID = int64Ptr(sessionID)
	p.ParentPaymentID = int64Ptr(parentID)
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "accountID", p.AccountID, "clientID", p.ClientID, "type", p.Type)

	query := `INSERT INTO payments (account_id, client_id, session_id, parent_payment_id, amount, expected_amount, credit_used,
	            status, payment_type, method, correlation_token, notes, paid_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	          RETURNING id`
	logger.DatabaseCall("INSERT", "payments", "clientID", p.ClientID)

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	var paidAt sql.NullTime
	if p.PaidAt != nil {
		paidAt = sql.NullTime{Time: *p.PaidAt, Valid: true}
	}

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		p.AccountID, p.ClientID, nullInt64(p.SessionID), nullInt64(p.ParentPaymentID), p.Amount, p.ExpectedAmount, p.CreditUsed,
		p.Status, p.Type, p.Method, nullString(p.CorrelationToken), nullString(p.Notes), paidAt, p.CreatedAt,
	).Scan(&p.ID)
	logger.DatabaseResult("INSERT", 1, err, "paymentID", p.ID)

	if isUniqueViolation(err) {
		err = domain.NewValidationError("session_id", "session already has a payment")
	}
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.Create", err, "clientID", p.ClientID)
		return err
	}
	logger.ExitMethod("paymentRepository.Create", "paymentID", p.ID)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND account_id = $2`
	p, err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, paymentID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", paymentID)
	}
	return p, err
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, accountID, paymentID int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND account_id = $2 FOR UPDATE`
	p, err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, paymentID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", paymentID)
	}
	return p, err
}

func (r *paymentRepository) GetByCorrelationTokenForUpdate(ctx context.Context, token string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE correlation_token = $1 AND parent_payment_id IS NULL FOR UPDATE`
	p, err := scanPayment(conn(ctx, r.db).QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", token)
	}
	return p, err
}

func (r *paymentRepository) LockForClient(ctx context.Context, accountID, clientID int64, ids []int64) ([]*domain.Payment, error) {
	logger.EnterMethod("paymentRepository.LockForClient", "clientID", clientID, "count", len(ids))

	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE account_id = $1 AND client_id = $2 AND id = ANY($3)
	          ORDER BY id FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "payments", "clientID", clientID)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, accountID, clientID, pq.Array(ids))
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.LockForClient", err, "clientID", clientID)
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("paymentRepository.LockForClient", "locked", len(payments))
	return payments, nil
}

func (r *paymentRepository) ExistsForSession(ctx context.Context, sessionID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE session_id = $1 AND parent_payment_id IS NULL)`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, sessionID).Scan(&exists)
	return exists, err
}

func (r *paymentRepository) UpdateProgress(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments SET amount = $2, status = $3, method = $4, paid_at = $5, updated_at = $6 WHERE id = $1`
	logger.DatabaseCall("UPDATE", "payments", "paymentID", p.ID)

	var paidAt sql.NullTime
	if p.PaidAt != nil {
		paidAt = sql.NullTime{Time: *p.PaidAt, Valid: true}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, query, p.ID, p.Amount, p.Status, p.Method, paidAt, p.UpdatedAt)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "paymentID", p.ID)
		return err
	}
	n, _ := result.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil, "paymentID", p.ID)
	if n == 0 {
		return domain.NotFound("payment", p.ID)
	}
	return nil
}

func (r *paymentRepository) AttachReceipt(ctx context.Context, paymentID int64, number, url string) (bool, error) {
	query := `UPDATE payments SET receipt_number = $2, receipt_url = $3, has_receipt = TRUE, updated_at = NOW()
	          WHERE id = $1 AND has_receipt = FALSE`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, paymentID, nullString(number), nullString(url))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *paymentRepository) UpdateNotes(ctx context.Context, paymentID int64, notes string) error {
	query := `UPDATE payments SET notes = $2, updated_at = NOW() WHERE id = $1`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, paymentID, nullString(notes))
	return err
}

func (r *paymentRepository) ListByClient(ctx context.Context, accountID, clientID int64, includeAudit bool) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE account_id = $1 AND client_id = $2 AND ($3 OR parent_payment_id IS NULL)
	          ORDER BY created_at, id`
	return r.list(ctx, query, accountID, clientID, includeAudit)
}

// ListMissingReceipts finds settled charges whose receipt issuance failed.
func (r *paymentRepository) ListMissingReceipts(ctx context.Context, paidBefore time.Time, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE status = 'PAID' AND has_receipt = FALSE AND parent_payment_id IS NULL
	            AND payment_type <> 'ADVANCE' AND paid_at < $1
	          ORDER BY paid_at LIMIT $2`
	return r.list(ctx, query, paidBefore, limit)
}

func (r *paymentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ListUnsettled returns every open charge of the account's reachable clients:
// pending payments plus billable sessions that never got a payment row.
func (r *paymentRepository) ListUnsettled(ctx context.Context, accountID int64) ([]domain.DebtItem, error) {
	logger.EnterMethod("paymentRepository.ListUnsettled", "accountID", accountID)

	query := `
		SELECT c.id, c.name, c.email, p.id, p.session_id, s.starts_at, p.expected_amount, p.amount, p.created_at
		FROM payments p
		JOIN clients c ON c.id = p.client_id
		LEFT JOIN sessions s ON s.id = p.session_id
		WHERE p.account_id = $1 AND p.status = 'PENDING' AND p.parent_payment_id IS NULL
		  AND p.payment_type <> 'ADVANCE'
		  AND (p.session_id IS NULL OR s.status = ANY($2))
		  AND COALESCE(c.email, '') <> ''
		UNION ALL
		SELECT c.id, c.name, c.email, NULL, s.id, s.starts_at, s.price, 0, s.created_at
		FROM sessions s
		JOIN clients c ON c.id = s.client_id
		WHERE s.account_id = $1 AND s.status = ANY($2) AND s.chargeable = TRUE AND s.price > 0
		  AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.session_id = s.id AND p.parent_payment_id IS NULL)
		  AND COALESCE(c.email, '') <> ''`
	logger.DatabaseCall("SELECT", "payments+sessions", "accountID", accountID)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, accountID, pq.Array(billableStatuses()))
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.ListUnsettled", err, "accountID", accountID)
		return nil, err
	}
	defer rows.Close()

	var items []domain.DebtItem
	for rows.Next() {
		var it domain.DebtItem
		var paymentID, sessionID sql.NullInt64
		var sessionDate sql.NullTime
		if err := rows.Scan(&it.ClientID, &it.ClientName, &it.ClientEmail, &paymentID, &sessionID, &sessionDate,
			&it.ExpectedAmount, &it.Amount, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.PaymentID = int64Ptr(paymentID)
		it.SessionID = int64Ptr(sessionID)
		it.SessionDate = timePtr(sessionDate)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("paymentRepository.ListUnsettled", "items", len(items))
	return items, nil
}
