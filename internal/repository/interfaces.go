package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/proprios/search-api/internal/model"
)

// All repository interfaces in one file
type (
	// OrganizationRepository handles organization reads and the monthly
	// credit reset.
	OrganizationRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		// ResetCredits flat-reassigns the balance to monthlyCredits and
		// stamps creditsResetAt, conditioned on the previous reset
		// timestamp so concurrent invocations cannot double-reset. It
		// appends the ADJUSTMENT transaction in the same unit of work and
		// reports whether this call won the conditional write.
		ResetCredits(ctx context.Context, orgID uuid.UUID, monthlyCredits int64, prevResetAt *time.Time, now time.Time) (bool, error)
	}

	// LedgerRepository owns balance mutations. Every mutation appends a
	// transaction in the same atomic unit.
	LedgerRepository interface {
		Balance(ctx context.Context, orgID uuid.UUID) (int64, error)
		Credit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error)
		// Debit fails with ErrInsufficientCredits when the balance cannot
		// cover the amount; the check and decrement are one atomic step.
		Debit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error)
		Transactions(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.CreditTransaction, error)
	}

	SearchRepository interface {
		Create(ctx context.Context, search *model.Search) error
		Get(ctx context.Context, id uuid.UUID) (*model.Search, error)
		List(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.Search, error)
		// UpdateStatus performs a conditional transition keyed on the
		// expected current status; a lost race returns ErrState.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.SearchStatus, at time.Time) error
		// CompleteExecution atomically claims VALIDATED -> COMPLETED,
		// bulk-inserts the result rows and debits the cost. Nothing
		// persists when any step fails.
		CompleteExecution(ctx context.Context, search *model.Search, properties []*model.Property, cost int64, description string, at time.Time) error
		// FinishEnrichment transitions to ENRICHED unconditionally
		// (enrichment is best effort).
		FinishEnrichment(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	PropertyRepository interface {
		ListBySearch(ctx context.Context, searchID uuid.UUID) ([]*model.Property, error)
		// ListUnenriched returns the rows still lacking enriched_at, making
		// a re-run after a crash skip already-charged work.
		ListUnenriched(ctx context.Context, searchID uuid.UUID) ([]*model.Property, error)
		MarkEnriched(ctx context.Context, id uuid.UUID, result *model.ContactResult, at time.Time) error
	}

	EnrichmentLogRepository interface {
		Create(ctx context.Context, log *model.EnrichmentLog) error
	}

	// DataSourceRepository manages the platform-scoped source registry.
	DataSourceRepository interface {
		Create(ctx context.Context, ds *model.DataSource) error
		Get(ctx context.Context, id uuid.UUID) (*model.DataSource, error)
		Update(ctx context.Context, ds *model.DataSource) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context) ([]*model.DataSource, error)
		ListActive(ctx context.Context) ([]*model.DataSource, error)
		ReplaceMappings(ctx context.Context, dataSourceID uuid.UUID, mappings map[string]string) error
		UpdateTestResult(ctx context.Context, id uuid.UUID, status model.DataSourceStatus, result *model.TestResult, at time.Time) error
	}
)
