package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
	"github.com/proprios/search-api/internal/service/ledger"
	apperrors "github.com/proprios/search-api/pkg/errors"
	"github.com/proprios/search-api/pkg/metrics"
	"github.com/proprios/search-api/pkg/queue"
)

// Router answers criteria against the configured external sources.
type Router interface {
	Count(ctx context.Context, criteria *model.Criteria) (int64, error)
	Fetch(ctx context.Context, criteria *model.Criteria) ([]*model.Property, error)
}

// Enqueuer hands enrichment jobs to the worker and exposes their progress.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}) error
	GetProgress(ctx context.Context, jobID string) (queue.Progress, error)
}

// Pricing carries the per-unit costs applied by the lifecycle.
type Pricing struct {
	CreditsPerResult int64
	PerContactCost   int64
}

// EnrichmentState is the polling view of an enrichment run.
type EnrichmentState struct {
	SearchID   uuid.UUID          `json:"search_id"`
	Status     model.SearchStatus `json:"status"`
	Processed  int64              `json:"processed"`
	Total      int64              `json:"total"`
	EnrichedAt *time.Time         `json:"enriched_at,omitempty"`
}

// Estimate is the advisory pricing answer returned before any credit moves.
type Estimate struct {
	Search           *model.Search `json:"search"`
	CurrentBalance   int64         `json:"current_balance"`
	RemainingBalance int64         `json:"remaining_balance"`
	CanProceed       bool          `json:"can_proceed"`
}

// Servicer drives the metered search lifecycle.
type Servicer interface {
	Estimate(ctx context.Context, orgID, userID uuid.UUID, searchType model.SearchType, rawCriteria json.RawMessage) (*Estimate, error)
	Validate(ctx context.Context, orgID, searchID uuid.UUID) (*model.Search, error)
	Execute(ctx context.Context, orgID, searchID uuid.UUID) (*model.Search, []*model.Property, error)
	Enrich(ctx context.Context, orgID, searchID uuid.UUID, notifyEmail string) (*model.Search, error)
	EnrichmentStatus(ctx context.Context, orgID, searchID uuid.UUID) (*EnrichmentState, error)
	Results(ctx context.Context, orgID, searchID uuid.UUID) ([]*model.Property, error)
	History(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.Search, error)
}

type Service struct {
	searchRepo   repository.SearchRepository
	propertyRepo repository.PropertyRepository
	orgRepo      repository.OrganizationRepository
	ledger       ledger.Servicer
	router       Router
	jobs         Enqueuer
	pricing      Pricing
	metrics      *metrics.Metrics
	now          func() time.Time
}

// WithMetrics attaches prometheus instrumentation. Optional; tests run
// without it.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func NewService(
	searchRepo repository.SearchRepository,
	propertyRepo repository.PropertyRepository,
	orgRepo repository.OrganizationRepository,
	ledgerSvc ledger.Servicer,
	router Router,
	jobs Enqueuer,
	pricing Pricing,
) *Service {
	return &Service{
		searchRepo:   searchRepo,
		propertyRepo: propertyRepo,
		orgRepo:      orgRepo,
		ledger:       ledgerSvc,
		router:       router,
		jobs:         jobs,
		pricing:      pricing,
		now:          time.Now,
	}
}

// Estimate prices a search without touching the balance. The count runs
// against the live source, so the estimate is advisory: executing later may
// find a different row count and charges the actual one.
func (s *Service) Estimate(ctx context.Context, orgID, userID uuid.UUID, searchType model.SearchType, rawCriteria json.RawMessage) (*Estimate, error) {
	if _, err := s.ledger.ResetIfDue(ctx, orgID); err != nil {
		return nil, err
	}

	criteria, err := model.ParseCriteria(searchType, rawCriteria)
	if err != nil {
		return nil, apperrors.Validation(err.Error(), err)
	}

	rows, err := s.router.Count(ctx, criteria)
	if err != nil {
		return nil, err
	}

	search := &model.Search{
		ID:             uuid.New(),
		OrganizationID: orgID,
		UserID:         userID,
		Type:           searchType,
		Criteria:       rawCriteria,
		Status:         model.SearchStatusEstimated,
		EstimatedRows:  rows,
		EstimatedCost:  rows * s.pricing.CreditsPerResult,
		CreatedAt:      s.now(),
	}
	if err := s.searchRepo.Create(ctx, search); err != nil {
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SearchesTotal.WithLabelValues(string(searchType), "estimate").Inc()
	}
	log.Info().
		Str("search_id", search.ID.String()).
		Str("org_id", orgID.String()).
		Int64("estimated_rows", rows).
		Int64("estimated_cost", search.EstimatedCost).
		Msg("search estimated")
	return &Estimate{
		Search:           search,
		CurrentBalance:   balance,
		RemainingBalance: balance - search.EstimatedCost,
		CanProceed:       balance >= search.EstimatedCost,
	}, nil
}

// Validate confirms intent to pay the estimated cost. The balance check here
// is advisory; Execute re-checks atomically when it actually debits.
func (s *Service) Validate(ctx context.Context, orgID, searchID uuid.UUID) (*model.Search, error) {
	search, err := s.ownedSearch(ctx, orgID, searchID)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(search.Status, model.SearchStatusValidated); err != nil {
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if balance < search.EstimatedCost {
		if s.metrics != nil {
			s.metrics.InsufficientFunds.Inc()
		}
		return nil, apperrors.InsufficientCredits(search.EstimatedCost, balance)
	}

	now := s.now()
	if err := s.searchRepo.UpdateStatus(ctx, searchID, model.SearchStatusEstimated, model.SearchStatusValidated, now); err != nil {
		return nil, err
	}
	search.Status = model.SearchStatusValidated
	search.ValidatedAt = &now
	if s.metrics != nil {
		s.metrics.SearchesTotal.WithLabelValues(string(search.Type), "validate").Inc()
	}
	return search, nil
}

// Execute fetches the actual rows and settles in one atomic unit: the
// VALIDATED -> COMPLETED claim, the result insert and the debit all commit
// together or not at all. A search that found nothing costs nothing.
func (s *Service) Execute(ctx context.Context, orgID, searchID uuid.UUID) (*model.Search, []*model.Property, error) {
	search, err := s.ownedSearch(ctx, orgID, searchID)
	if err != nil {
		return nil, nil, err
	}
	if err := guardTransition(search.Status, model.SearchStatusCompleted); err != nil {
		return nil, nil, err
	}

	criteria, err := search.ParsedCriteria()
	if err != nil {
		return nil, nil, apperrors.Validation(err.Error(), err)
	}

	properties, err := s.router.Fetch(ctx, criteria)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range properties {
		p.ID = uuid.New()
		p.SearchID = search.ID
	}

	cost := int64(len(properties)) * s.pricing.CreditsPerResult
	description := fmt.Sprintf("Search %s: %d results", search.ID, len(properties))
	if err := s.searchRepo.CompleteExecution(ctx, search, properties, cost, description, s.now()); err != nil {
		if s.metrics != nil && apperrors.IsCode(err, apperrors.ErrInsufficientCredits) {
			s.metrics.InsufficientFunds.Inc()
		}
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.SearchesTotal.WithLabelValues(string(search.Type), "execute").Inc()
		s.metrics.SearchRows.Observe(float64(len(properties)))
		if cost > 0 {
			s.metrics.CreditsDebited.WithLabelValues(string(model.TransactionSearchCost)).Add(float64(cost))
		}
	}

	log.Info().
		Str("search_id", search.ID.String()).
		Int("rows", len(properties)).
		Int64("cost", cost).
		Msg("search executed")
	return search, properties, nil
}

// Enrich claims COMPLETED -> ENRICHING and enqueues exactly one job. The
// conditional claim makes a duplicate request lose with a conflict instead
// of producing a second job.
func (s *Service) Enrich(ctx context.Context, orgID, searchID uuid.UUID, notifyEmail string) (*model.Search, error) {
	search, err := s.ownedSearch(ctx, orgID, searchID)
	if err != nil {
		return nil, err
	}

	org, err := s.orgRepo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.Plan.AllowsEnrichment() {
		return nil, apperrors.Forbidden(fmt.Sprintf("plan %s does not include enrichment", org.Plan), nil)
	}

	if err := guardTransition(search.Status, model.SearchStatusEnriching); err != nil {
		return nil, err
	}

	pending, err := s.propertyRepo.ListUnenriched(ctx, searchID)
	if err != nil {
		return nil, err
	}
	eligible := int64(0)
	for _, p := range pending {
		if p.ContactLastName != "" || p.Owner != "" {
			eligible++
		}
	}
	if eligible == 0 {
		return nil, apperrors.Validation("search has no contacts to enrich", nil)
	}

	balance, err := s.ledger.Balance(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if worst := eligible * s.pricing.PerContactCost; balance < worst {
		return nil, apperrors.InsufficientCredits(worst, balance)
	}

	now := s.now()
	if err := s.searchRepo.UpdateStatus(ctx, searchID, model.SearchStatusCompleted, model.SearchStatusEnriching, now); err != nil {
		return nil, err
	}

	job := &model.EnrichmentJob{
		JobID:          uuid.New(),
		SearchID:       searchID,
		OrganizationID: orgID,
		NotifyEmail:    notifyEmail,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		// Hand the search back so the caller can retry.
		if revertErr := s.searchRepo.UpdateStatus(ctx, searchID, model.SearchStatusEnriching, model.SearchStatusCompleted, now); revertErr != nil {
			log.Error().Err(revertErr).Str("search_id", searchID.String()).Msg("failed to revert enriching claim")
		}
		return nil, apperrors.ExternalService("queue", err)
	}

	search.Status = model.SearchStatusEnriching
	log.Info().
		Str("search_id", searchID.String()).
		Str("job_id", job.JobID.String()).
		Int64("contacts", eligible).
		Msg("enrichment enqueued")
	return search, nil
}

// EnrichmentStatus reports the lifecycle status plus worker progress.
// Progress is keyed by search so pollers need no job handle.
func (s *Service) EnrichmentStatus(ctx context.Context, orgID, searchID uuid.UUID) (*EnrichmentState, error) {
	search, err := s.ownedSearch(ctx, orgID, searchID)
	if err != nil {
		return nil, err
	}
	state := &EnrichmentState{SearchID: searchID, Status: search.Status, EnrichedAt: search.EnrichedAt}

	progress, err := s.jobs.GetProgress(ctx, searchID.String())
	if err == nil {
		state.Processed = progress.Processed
		state.Total = progress.Total
	}
	return state, nil
}

// Results returns the rows of an executed search.
func (s *Service) Results(ctx context.Context, orgID, searchID uuid.UUID) ([]*model.Property, error) {
	search, err := s.ownedSearch(ctx, orgID, searchID)
	if err != nil {
		return nil, err
	}
	switch search.Status {
	case model.SearchStatusCompleted, model.SearchStatusEnriching, model.SearchStatusEnriched:
		return s.propertyRepo.ListBySearch(ctx, searchID)
	}
	return nil, apperrors.State(fmt.Sprintf("search %s has no results yet", searchID), nil)
}

func (s *Service) History(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.Search, error) {
	return s.searchRepo.List(ctx, orgID, limit)
}

// ownedSearch loads a search and rejects callers from another organization.
func (s *Service) ownedSearch(ctx context.Context, orgID, searchID uuid.UUID) (*model.Search, error) {
	search, err := s.searchRepo.Get(ctx, searchID)
	if err != nil {
		return nil, err
	}
	if search.OrganizationID != orgID {
		return nil, apperrors.Forbidden("search belongs to another organization", nil)
	}
	return search, nil
}
