package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
)

type ledgerRepository struct {
	BaseRepository
}

func NewLedgerRepository(base BaseRepository) repository.LedgerRepository {
	return &ledgerRepository{base}
}

func (r *ledgerRepository) Balance(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var balance int64
	err := r.GetDB().GetContext(ctx, &balance, `SELECT credit_balance FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (r *ledgerRepository) Credit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	var balance int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &balance, `
			UPDATE organizations
			SET credit_balance = credit_balance + $1, updated_at = NOW()
			WHERE id = $2
			RETURNING credit_balance
		`, amount, orgID); err != nil {
			return fmt.Errorf("failed to credit organization: %w", err)
		}
		return appendTransactionTx(ctx, tx, orgID, amount, txType, description, searchID)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *ledgerRepository) Debit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	var balance int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		balance, err = debitTx(ctx, tx, orgID, amount, txType, description, searchID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *ledgerRepository) Transactions(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM credit_transactions
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var txs []*model.CreditTransaction
	if err := r.GetDB().SelectContext(ctx, &txs, query, orgID, limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
