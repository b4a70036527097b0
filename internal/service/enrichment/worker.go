package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
	"github.com/proprios/search-api/internal/service/ledger"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/metrics"
	"github.com/proprios/search-api/pkg/queue"
)

// Notifier sends the completion email. Optional; a nil notifier disables
// notifications.
type Notifier interface {
	NotifyEnrichmentComplete(to string, searchID uuid.UUID, success, failed int) error
}

// JobQueue is the worker's view of the job queue.
type JobQueue interface {
	Dequeue(ctx context.Context, block time.Duration) ([]byte, error)
	SetProgress(ctx context.Context, jobID string, p queue.Progress) error
}

type WorkerConfig struct {
	// PerContactCost is charged per successfully enriched contact, after
	// the run.
	PerContactCost int64
	// RequestsPerSecond paces provider calls. Providers meter aggressively;
	// one request per second keeps batches inside their limits.
	RequestsPerSecond float64
}

// Worker drains the enrichment queue one job at a time. Contacts are
// processed sequentially and each row is persisted as soon as its lookup
// finishes, so a crash mid-run never loses paid work: the next run skips
// every row that already carries enriched_at.
type Worker struct {
	jobs         JobQueue
	searchRepo   repository.SearchRepository
	propertyRepo repository.PropertyRepository
	logRepo      repository.EnrichmentLogRepository
	ledger       ledger.Servicer
	provider     Provider
	notifier     Notifier
	limiter      *rate.Limiter
	logger       *logger.Logger
	metrics      *metrics.Metrics
	cfg          WorkerConfig
	now          func() time.Time
}

// WithMetrics attaches prometheus instrumentation. Optional; tests run
// without it.
func (w *Worker) WithMetrics(m *metrics.Metrics) *Worker {
	w.metrics = m
	return w
}

func NewWorker(
	jobs JobQueue,
	searchRepo repository.SearchRepository,
	propertyRepo repository.PropertyRepository,
	logRepo repository.EnrichmentLogRepository,
	ledgerSvc ledger.Servicer,
	provider Provider,
	notifier Notifier,
	log *logger.Logger,
	cfg WorkerConfig,
) *Worker {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Worker{
		jobs:         jobs,
		searchRepo:   searchRepo,
		propertyRepo: propertyRepo,
		logRepo:      logRepo,
		ledger:       ledgerSvc,
		provider:     provider,
		notifier:     notifier,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		logger:       log,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Run blocks until the context is cancelled, processing jobs serially.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("enrichment worker started")
	for {
		payload, err := w.jobs.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.logger.Info("enrichment worker stopping")
				return ctx.Err()
			}
			w.logger.Error(err, "dequeue failed")
			time.Sleep(time.Second)
			continue
		}

		var job model.EnrichmentJob
		if err := json.Unmarshal(payload, &job); err != nil {
			w.logger.Error(err, "discarding malformed job payload")
			continue
		}
		if err := w.Process(ctx, &job); err != nil {
			w.logger.Error(err, "enrichment job failed", "search_id", job.SearchID.String())
			if w.metrics != nil {
				w.metrics.EnrichmentJobsFailed.Inc()
			}
		}
	}
}

// Process runs one enrichment job end to end. Individual contact failures
// are tolerated; the run always terminates in ENRICHED with whatever rows
// resolved, and only resolved contacts are charged.
func (w *Worker) Process(ctx context.Context, job *model.EnrichmentJob) error {
	started := w.now()
	pending, err := w.propertyRepo.ListUnenriched(ctx, job.SearchID)
	if err != nil {
		return err
	}

	total := int64(len(pending))
	successCount := 0
	failureCount := 0
	progressKey := job.SearchID.String()

	for i, property := range pending {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		req := contactRequest(property)
		if req.LastName == "" && req.CompanyName == "" {
			failureCount++
			continue
		}

		result, err := w.provider.EnrichContact(ctx, req)
		if err != nil {
			failureCount++
			if !errors.Is(err, ErrContactNotFound) {
				w.logger.Warn("contact lookup failed",
					"search_id", job.SearchID.String(),
					"property_id", property.ID.String(),
					"error", err.Error(),
				)
			}
		} else {
			if err := w.propertyRepo.MarkEnriched(ctx, property.ID, result, w.now()); err != nil {
				return err
			}
			successCount++
		}

		if err := w.jobs.SetProgress(ctx, progressKey, queue.Progress{
			Processed: int64(i + 1),
			Total:     total,
		}); err != nil {
			w.logger.Warn("progress update failed", "search_id", progressKey)
		}
	}

	cost := int64(successCount) * w.cfg.PerContactCost
	if cost > 0 {
		description := fmt.Sprintf("Enrichment of search %s: %d contacts", job.SearchID, successCount)
		searchID := job.SearchID
		if _, err := w.ledger.Debit(ctx, job.OrganizationID, cost, model.TransactionEnrichmentCost, description, &searchID); err != nil {
			// The work is done and persisted; an uncollectable charge is an
			// operational problem, not a reason to strand the search.
			w.logger.Error(err, "enrichment charge failed",
				"search_id", job.SearchID.String(),
				"cost", cost,
			)
			cost = 0
		}
	}

	if err := w.logRepo.Create(ctx, &model.EnrichmentLog{
		ID:             uuid.New(),
		SearchID:       job.SearchID,
		OrganizationID: job.OrganizationID,
		Provider:       w.provider.Name(),
		SuccessCount:   successCount,
		FailureCount:   failureCount,
		Cost:           cost,
		CompletedAt:    w.now(),
	}); err != nil {
		w.logger.Error(err, "enrichment log write failed", "search_id", job.SearchID.String())
	}

	if err := w.searchRepo.FinishEnrichment(ctx, job.SearchID, w.now()); err != nil {
		return err
	}

	if w.notifier != nil && job.NotifyEmail != "" {
		if err := w.notifier.NotifyEnrichmentComplete(job.NotifyEmail, job.SearchID, successCount, failureCount); err != nil {
			w.logger.Warn("completion notification failed", "search_id", job.SearchID.String())
		}
	}

	if w.metrics != nil {
		w.metrics.EnrichmentJobsProcessed.Inc()
		w.metrics.EnrichmentContacts.WithLabelValues("found").Add(float64(successCount))
		w.metrics.EnrichmentContacts.WithLabelValues("not_found").Add(float64(failureCount))
		w.metrics.EnrichmentDuration.Observe(w.now().Sub(started).Seconds())
		if cost > 0 {
			w.metrics.CreditsDebited.WithLabelValues(string(model.TransactionEnrichmentCost)).Add(float64(cost))
		}
	}

	w.logger.Info("enrichment job finished",
		"search_id", job.SearchID.String(),
		"success", successCount,
		"failed", failureCount,
		"cost", cost,
	)
	return nil
}

// contactRequest builds the provider lookup from the cross-referenced
// contact when present, falling back to the raw owner string.
func contactRequest(p *model.Property) ContactRequest {
	req := ContactRequest{
		CompanyName: p.CompanyName,
		SIREN:       p.SIREN,
	}
	if p.ContactLastName != "" {
		req.LastName = p.ContactLastName
		req.FirstName = p.ContactFirstName
		return req
	}
	req.LastName, req.FirstName = SplitOwnerName(p.Owner)
	if req.CompanyName == "" && req.LastName == "" {
		req.CompanyName = p.Owner
	}
	return req
}
