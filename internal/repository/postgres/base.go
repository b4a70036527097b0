package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// debitTx performs the balance check and decrement as one conditional UPDATE
// and appends the ledger entry inside the caller's transaction. Zero rows
// affected means the balance could not cover the amount.
func debitTx(ctx context.Context, tx *sqlx.Tx, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE organizations
		SET credit_balance = credit_balance - $1, updated_at = NOW()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		// No row updated: either the organization is unknown or the
		// balance is short. Disambiguate with a plain read.
		var current int64
		if readErr := tx.GetContext(ctx, &current, `SELECT credit_balance FROM organizations WHERE id = $1`, orgID); readErr != nil {
			return 0, apperrors.NotFound("organization", readErr)
		}
		return 0, apperrors.InsufficientCredits(amount, current)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	if err := appendTransactionTx(ctx, tx, orgID, -amount, txType, description, searchID); err != nil {
		return 0, err
	}
	return balance, nil
}

func appendTransactionTx(ctx context.Context, tx *sqlx.Tx, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, organization_id, amount, type, description, search_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New(), orgID, amount, txType, description, searchID)
	return err
}
