package postgres_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/repository/postgres"
)

func TestClientRepository_DecreaseCredit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewClientRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("UPDATE clients SET credit_balance = credit_balance - \\$3").
			WithArgs(int64(5), int64(1), decimal.NewFromInt(40)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow("60.00"))

		balance, err := repo.DecreaseCredit(ctx, 1, 5, decimal.NewFromInt(40))
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(60)))
	})

	t.Run("Insufficient", func(t *testing.T) {
		mock.ExpectQuery("UPDATE clients SET credit_balance = credit_balance - \\$3").
			WithArgs(int64(5), int64(1), decimal.NewFromInt(100)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}))
		mock.ExpectQuery("SELECT credit_balance FROM clients").
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow("60.00"))

		_, err := repo.DecreaseCredit(ctx, 1, 5, decimal.NewFromInt(100))
		var ic *domain.InsufficientCreditError
		require.ErrorAs(t, err, &ic)
		assert.True(t, ic.Available.Equal(decimal.NewFromInt(60)))
		assert.True(t, ic.Requested.Equal(decimal.NewFromInt(100)))
	})

	t.Run("ClientNotFound", func(t *testing.T) {
		mock.ExpectQuery("UPDATE clients SET credit_balance = credit_balance - \\$3").
			WithArgs(int64(9), int64(1), decimal.NewFromInt(1)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}))
		mock.ExpectQuery("SELECT credit_balance FROM clients").
			WithArgs(int64(9), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}))

		_, err := repo.DecreaseCredit(ctx, 1, 9, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_IncreaseCredit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewClientRepository(db)

	mock.ExpectQuery("UPDATE clients SET credit_balance = credit_balance \\+ \\$3").
		WithArgs(int64(5), int64(1), decimal.NewFromInt(250)).
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow("250.00"))

	balance, err := repo.IncreaseCredit(context.Background(), 1, 5, decimal.NewFromInt(250))
	assert.NoError(t, err)
	assert.Equal(t, "250", balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
