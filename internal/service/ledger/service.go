package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
	"github.com/proprios/search-api/pkg/metrics"
)

// Servicer owns an organization's credit balance and its append-only
// transaction log.
type Servicer interface {
	Balance(ctx context.Context, orgID uuid.UUID) (int64, error)
	Credit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error)
	Debit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error)
	Transactions(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.CreditTransaction, error)
	ResetIfDue(ctx context.Context, orgID uuid.UUID) (bool, error)
	NextResetAt(ctx context.Context, orgID uuid.UUID) (*time.Time, error)
}

type Service struct {
	orgRepo    repository.OrganizationRepository
	ledgerRepo repository.LedgerRepository
	metrics    *metrics.Metrics
	now        func() time.Time
}

// WithMetrics attaches prometheus instrumentation. Optional; tests run
// without it.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func NewService(orgRepo repository.OrganizationRepository, ledgerRepo repository.LedgerRepository) *Service {
	return &Service{
		orgRepo:    orgRepo,
		ledgerRepo: ledgerRepo,
		now:        time.Now,
	}
}

func (s *Service) Balance(ctx context.Context, orgID uuid.UUID) (int64, error) {
	return s.ledgerRepo.Balance(ctx, orgID)
}

func (s *Service) Credit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}
	balance, err := s.ledgerRepo.Credit(ctx, orgID, amount, txType, description, searchID)
	if err == nil && s.metrics != nil {
		s.metrics.CreditsCredited.WithLabelValues(string(txType)).Add(float64(amount))
	}
	return balance, err
}

func (s *Service) Debit(ctx context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive")
	}
	return s.ledgerRepo.Debit(ctx, orgID, amount, txType, description, searchID)
}

func (s *Service) Transactions(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.CreditTransaction, error) {
	return s.ledgerRepo.Transactions(ctx, orgID, limit)
}

// ResetIfDue flat-reassigns the balance to the organization's monthly
// allowance when a month has elapsed since the last reset. Credits do not
// accumulate month to month. The underlying write is conditional on the
// previous reset timestamp, so a concurrent invocation loses cleanly and
// reports false.
func (s *Service) ResetIfDue(ctx context.Context, orgID uuid.UUID) (bool, error) {
	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return false, err
	}

	if org.MonthlyCredits <= 0 {
		return false, nil
	}

	now := s.now()
	if org.CreditsResetAt != nil && org.CreditsResetAt.After(now.AddDate(0, -1, 0)) {
		return false, nil
	}

	won, err := s.orgRepo.ResetCredits(ctx, orgID, org.MonthlyCredits, org.CreditsResetAt, now)
	if err != nil {
		return false, err
	}
	if won {
		log.Info().
			Str("organization_id", orgID.String()).
			Int64("monthly_credits", org.MonthlyCredits).
			Msg("monthly credits reset")
	}
	return won, nil
}

// NextResetAt returns one month after the last reset, or nil when the
// organization has never been reset.
func (s *Service) NextResetAt(ctx context.Context, orgID uuid.UUID) (*time.Time, error) {
	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.CreditsResetAt == nil {
		return nil, nil
	}
	next := org.CreditsResetAt.AddDate(0, 1, 0)
	return &next, nil
}
