package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/repository"
)

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `id, account_id, client_id, starts_at, price, status, chargeable, created_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.AccountID, &s.ClientID, &s.StartsAt, &s.Price, &s.Status, &s.Chargeable, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) GetByID(ctx context.Context, accountID, sessionID int64) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 AND account_id = $2`
	s, err := scanSession(conn(ctx, r.db).QueryRowContext(ctx, query, sessionID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("session", sessionID)
	}
	return s, err
}

// ListUnpaidBillable returns billable sessions of the client that have no
// payment row yet.
func (r *sessionRepository) ListUnpaidBillable(ctx context.Context, accountID, clientID int64) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s
	          WHERE s.account_id = $1 AND s.client_id = $2
	            AND s.status = ANY($3) AND s.chargeable = TRUE AND s.price > 0
	            AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.session_id = s.id AND p.parent_payment_id IS NULL)
	          ORDER BY s.starts_at`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, accountID, clientID, pq.Array(billableStatuses()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func billableStatuses() []string {
	out := make([]string, 0, len(domain.BillableSessionStatuses))
	for _, s := range domain.BillableSessionStatuses {
		out = append(out, string(s))
	}
	return out
}
