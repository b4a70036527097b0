package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
)

type organizationRepository struct {
	BaseRepository
}

func NewOrganizationRepository(base BaseRepository) repository.OrganizationRepository {
	return &organizationRepository{base}
}

func (r *organizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	query := `
		SELECT * FROM organizations
		WHERE id = $1
	`
	var org model.Organization
	if err := r.GetDB().GetContext(ctx, &org, query, id); err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// ResetCredits flat-reassigns the balance (credits do not accumulate month to
// month). The WHERE clause on the previous credits_reset_at value makes the
// write conditional: when two cron invocations race, only one matches and the
// other observes zero rows affected.
func (r *organizationRepository) ResetCredits(ctx context.Context, orgID uuid.UUID, monthlyCredits int64, prevResetAt *time.Time, now time.Time) (bool, error) {
	won := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var prior int64
		if err := tx.GetContext(ctx, &prior, `
			SELECT credit_balance FROM organizations WHERE id = $1 FOR UPDATE
		`, orgID); err != nil {
			return fmt.Errorf("failed to read balance before reset: %w", err)
		}

		var (
			result interface {
				RowsAffected() (int64, error)
			}
			err error
		)
		if prevResetAt == nil {
			result, err = tx.ExecContext(ctx, `
				UPDATE organizations
				SET credit_balance = $1, credits_reset_at = $2, updated_at = NOW()
				WHERE id = $3 AND credits_reset_at IS NULL
			`, monthlyCredits, now, orgID)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE organizations
				SET credit_balance = $1, credits_reset_at = $2, updated_at = NOW()
				WHERE id = $3 AND credits_reset_at = $4
			`, monthlyCredits, now, orgID, *prevResetAt)
		}
		if err != nil {
			return fmt.Errorf("failed to reset credits: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			// Another invocation already reset for this period.
			return nil
		}

		won = true
		// The ledger records the balance movement, not the allowance:
		// resetting 37 to 500 is a +463 adjustment, and a balance above
		// the allowance yields a negative one.
		description := fmt.Sprintf("Monthly reset to %d credits", monthlyCredits)
		return appendTransactionTx(ctx, tx, orgID, monthlyCredits-prior, model.TransactionAdjustment, description, nil)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
