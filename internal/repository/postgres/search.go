package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

type searchRepository struct {
	BaseRepository
}

func NewSearchRepository(base BaseRepository) repository.SearchRepository {
	return &searchRepository{base}
}

func (r *searchRepository) Create(ctx context.Context, search *model.Search) error {
	query := `
		INSERT INTO searches (
			id, organization_id, user_id, type, criteria, status,
			estimated_rows, estimated_cost, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if search.ID == uuid.Nil {
		search.ID = uuid.New()
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = time.Now()
	}

	_, err := r.GetDB().ExecContext(ctx, query,
		search.ID,
		search.OrganizationID,
		search.UserID,
		search.Type,
		[]byte(search.Criteria),
		search.Status,
		search.EstimatedRows,
		search.EstimatedCost,
		search.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create search: %w", err)
	}
	return nil
}

func (r *searchRepository) Get(ctx context.Context, id uuid.UUID) (*model.Search, error) {
	query := `
		SELECT * FROM searches
		WHERE id = $1
	`
	var search model.Search
	if err := r.GetDB().GetContext(ctx, &search, query, id); err != nil {
		return nil, apperrors.NotFound("search", err)
	}
	return &search, nil
}

func (r *searchRepository) List(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.Search, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM searches
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var searches []*model.Search
	if err := r.GetDB().SelectContext(ctx, &searches, query, orgID, limit); err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	return searches, nil
}

// statusTimestampColumn maps target states to their transition timestamp.
func statusTimestampColumn(to model.SearchStatus) string {
	switch to {
	case model.SearchStatusValidated:
		return "validated_at"
	case model.SearchStatusCompleted:
		return "completed_at"
	case model.SearchStatusEnriched:
		return "enriched_at"
	}
	return ""
}

// UpdateStatus is a conditional transition: the WHERE clause on the expected
// current status makes exactly one concurrent caller win; losers observe zero
// rows affected and get ErrState with no side effects.
func (r *searchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.SearchStatus, at time.Time) error {
	query := `UPDATE searches SET status = $1`
	args := []interface{}{to}
	if col := statusTimestampColumn(to); col != "" {
		query += fmt.Sprintf(", %s = $2 WHERE id = $3 AND status = $4", col)
		args = append(args, at, id, from)
	} else {
		query += ` WHERE id = $2 AND status = $3`
		args = append(args, id, from)
	}

	result, err := r.GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update search status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.State(fmt.Sprintf("search is not in %s state", from), nil)
	}
	return nil
}

// CompleteExecution is the one atomic unit of Execute: conditional claim of
// the VALIDATED status, bulk insert of result rows, debit of the actual cost
// and the COMPLETED stamp. If the debit fails because the balance dropped
// since Validate, everything rolls back and no row persists.
func (r *searchRepository) CompleteExecution(ctx context.Context, search *model.Search, properties []*model.Property, cost int64, description string, at time.Time) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE searches
			SET status = $1, actual_rows = $2, actual_cost = $3, completed_at = $4
			WHERE id = $5 AND status = $6
		`, model.SearchStatusCompleted, int64(len(properties)), cost, at, search.ID, model.SearchStatusValidated)
		if err != nil {
			return fmt.Errorf("failed to complete search: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.State("search is not in VALIDATED state", nil)
		}

		if err := insertPropertiesTx(ctx, tx, properties); err != nil {
			return err
		}

		if cost > 0 {
			if _, err := debitTx(ctx, tx, search.OrganizationID, cost, model.TransactionSearchCost, description, &search.ID); err != nil {
				return err
			}
		}

		search.Status = model.SearchStatusCompleted
		search.ActualRows = int64(len(properties))
		search.ActualCost = cost
		search.CompletedAt = &at
		return nil
	})
}

func (r *searchRepository) FinishEnrichment(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.GetDB().ExecContext(ctx, `
		UPDATE searches SET status = $1, enriched_at = $2 WHERE id = $3
	`, model.SearchStatusEnriched, at, id)
	if err != nil {
		return fmt.Errorf("failed to finish enrichment: %w", err)
	}
	return nil
}
