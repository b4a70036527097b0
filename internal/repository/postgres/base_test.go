package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

func newMockTx(t *testing.T) (*sqlx.Tx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	tx, err := sqlx.NewDb(db, "sqlmock").Beginx()
	require.NoError(t, err)
	return tx, mock
}

func TestDebitTxShortBalance(t *testing.T) {
	tx, mock := newMockTx(t)
	orgID := uuid.New()

	mock.ExpectQuery("UPDATE organizations").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT credit_balance").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(5))

	_, err := debitTx(context.Background(), tx, orgID, 10, model.TransactionSearchCost, "", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInsufficientCredits))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitTxInfrastructureErrorIsNotInsufficientCredits(t *testing.T) {
	tx, mock := newMockTx(t)
	orgID := uuid.New()

	// A cancelled context or connection fault must surface as-is, not be
	// mistaken for a short balance.
	mock.ExpectQuery("UPDATE organizations").WillReturnError(context.Canceled)

	_, err := debitTx(context.Background(), tx, orgID, 10, model.TransactionSearchCost, "", nil)
	require.Error(t, err)
	assert.False(t, apperrors.IsCode(err, apperrors.ErrInsufficientCredits))
	assert.False(t, apperrors.IsCode(err, apperrors.ErrNotFound))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
