package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/queue"
)

type workerFixture struct {
	mu sync.Mutex

	properties []*model.Property
	finished   map[uuid.UUID]bool
	logs       []*model.EnrichmentLog
	debits     []int64
	debitErr   error
	progress   []queue.Progress
	notified   []string

	lookups   []ContactRequest
	failNames map[string]error
}

func newWorkerFixture() *workerFixture {
	return &workerFixture{
		finished:  make(map[uuid.UUID]bool),
		failNames: make(map[string]error),
	}
}

func (f *workerFixture) worker(cost int64) *Worker {
	w := NewWorker(
		(*wfQueue)(f),
		(*wfSearchRepo)(f),
		(*wfPropertyRepo)(f),
		(*wfLogRepo)(f),
		(*wfLedger)(f),
		(*wfProvider)(f),
		(*wfNotifier)(f),
		logger.NewLogger(nil),
		WorkerConfig{PerContactCost: cost, RequestsPerSecond: 10000},
	)
	return w
}

func (f *workerFixture) addProperty(owner, contactLastName string, enriched bool) *model.Property {
	p := &model.Property{
		ID:              uuid.New(),
		Owner:           owner,
		SIREN:           "123456789",
		ContactLastName: contactLastName,
	}
	if enriched {
		now := time.Now()
		p.EnrichedAt = &now
	}
	f.properties = append(f.properties, p)
	return p
}

type wfQueue workerFixture

func (q *wfQueue) Dequeue(ctx context.Context, block time.Duration) ([]byte, error) {
	return nil, queue.ErrEmpty
}

func (q *wfQueue) SetProgress(_ context.Context, jobID string, p queue.Progress) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress = append(q.progress, p)
	return nil
}

type wfSearchRepo workerFixture

func (r *wfSearchRepo) Create(context.Context, *model.Search) error { return nil }
func (r *wfSearchRepo) Get(context.Context, uuid.UUID) (*model.Search, error) {
	return nil, errors.New("not implemented")
}
func (r *wfSearchRepo) List(context.Context, uuid.UUID, int) ([]*model.Search, error) {
	return nil, nil
}
func (r *wfSearchRepo) UpdateStatus(context.Context, uuid.UUID, model.SearchStatus, model.SearchStatus, time.Time) error {
	return nil
}
func (r *wfSearchRepo) CompleteExecution(context.Context, *model.Search, []*model.Property, int64, string, time.Time) error {
	return nil
}

func (r *wfSearchRepo) FinishEnrichment(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = true
	return nil
}

type wfPropertyRepo workerFixture

func (r *wfPropertyRepo) ListBySearch(_ context.Context, searchID uuid.UUID) ([]*model.Property, error) {
	return r.properties, nil
}

func (r *wfPropertyRepo) ListUnenriched(_ context.Context, searchID uuid.UUID) ([]*model.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Property
	for _, p := range r.properties {
		if p.EnrichedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *wfPropertyRepo) MarkEnriched(_ context.Context, id uuid.UUID, result *model.ContactResult, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.properties {
		if p.ID == id {
			p.Email = result.Email
			p.EnrichedAt = &at
			return nil
		}
	}
	return errors.New("property not found")
}

type wfLogRepo workerFixture

func (r *wfLogRepo) Create(_ context.Context, log *model.EnrichmentLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

type wfLedger workerFixture

func (l *wfLedger) Balance(context.Context, uuid.UUID) (int64, error) { return 0, nil }
func (l *wfLedger) Credit(context.Context, uuid.UUID, int64, model.TransactionType, string, *uuid.UUID) (int64, error) {
	return 0, nil
}
func (l *wfLedger) Transactions(context.Context, uuid.UUID, int) ([]*model.CreditTransaction, error) {
	return nil, nil
}
func (l *wfLedger) ResetIfDue(context.Context, uuid.UUID) (bool, error) {
	return false, nil
}
func (l *wfLedger) NextResetAt(context.Context, uuid.UUID) (*time.Time, error) {
	return nil, nil
}

func (l *wfLedger) Debit(_ context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return 0, l.debitErr
	}
	l.debits = append(l.debits, amount)
	return 0, nil
}

type wfProvider workerFixture

func (p *wfProvider) Name() string { return "fake" }

func (p *wfProvider) EnrichContact(_ context.Context, req ContactRequest) (*model.ContactResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups = append(p.lookups, req)
	if err, ok := p.failNames[req.LastName]; ok {
		return nil, err
	}
	return &model.ContactResult{Email: "found@example.fr", Confidence: 0.9}, nil
}

type wfNotifier workerFixture

func (n *wfNotifier) NotifyEnrichmentComplete(to string, searchID uuid.UUID, success, failed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, to)
	return nil
}

func job(f *workerFixture) *model.EnrichmentJob {
	return &model.EnrichmentJob{
		JobID:          uuid.New(),
		SearchID:       uuid.New(),
		OrganizationID: uuid.New(),
	}
}

func TestProcessChargesOnlyResolvedContacts(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", false)
	f.addProperty("MARTIN Sophie", "MARTIN", false)
	f.addProperty("INTROUVABLE Paul", "INTROUVABLE", false)
	f.failNames["INTROUVABLE"] = ErrContactNotFound

	w := f.worker(10)
	j := job(f)
	require.NoError(t, w.Process(context.Background(), j))

	require.Len(t, f.debits, 1)
	assert.Equal(t, int64(20), f.debits[0], "2 resolved contacts at 10 credits each")

	require.Len(t, f.logs, 1)
	assert.Equal(t, 2, f.logs[0].SuccessCount)
	assert.Equal(t, 1, f.logs[0].FailureCount)
	assert.Equal(t, int64(20), f.logs[0].Cost)
	assert.Equal(t, "fake", f.logs[0].Provider)

	assert.True(t, f.finished[j.SearchID], "run must terminate in ENRICHED")
	assert.NotNil(t, f.properties[0].EnrichedAt)
	assert.NotNil(t, f.properties[1].EnrichedAt)
	assert.Nil(t, f.properties[2].EnrichedAt)
}

func TestProcessSkipsAlreadyEnrichedRows(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", true)
	f.addProperty("MARTIN Sophie", "MARTIN", false)

	w := f.worker(10)
	require.NoError(t, w.Process(context.Background(), job(f)))

	require.Len(t, f.lookups, 1, "rows already enriched are never re-sent")
	assert.Equal(t, "MARTIN", f.lookups[0].LastName)
	require.Len(t, f.debits, 1)
	assert.Equal(t, int64(10), f.debits[0])
}

func TestProcessProviderOutageTerminatesRun(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", false)
	f.addProperty("MARTIN Sophie", "MARTIN", false)
	f.failNames["DUPONT"] = errors.New("provider 502")
	f.failNames["MARTIN"] = errors.New("provider 502")

	w := f.worker(10)
	j := job(f)
	require.NoError(t, w.Process(context.Background(), j))

	assert.Empty(t, f.debits, "nothing resolved, nothing charged")
	require.Len(t, f.logs, 1)
	assert.Equal(t, 0, f.logs[0].SuccessCount)
	assert.Equal(t, 2, f.logs[0].FailureCount)
	assert.True(t, f.finished[j.SearchID])
}

func TestProcessDebitFailureStillFinishes(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", false)
	f.debitErr = errors.New("ledger unavailable")

	w := f.worker(10)
	j := job(f)
	require.NoError(t, w.Process(context.Background(), j))

	assert.True(t, f.finished[j.SearchID])
	require.Len(t, f.logs, 1)
	assert.Zero(t, f.logs[0].Cost, "an uncollected charge is not logged as revenue")
}

func TestProcessReportsProgress(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", false)
	f.addProperty("MARTIN Sophie", "MARTIN", false)

	w := f.worker(10)
	require.NoError(t, w.Process(context.Background(), job(f)))

	require.Len(t, f.progress, 2)
	assert.Equal(t, queue.Progress{Processed: 1, Total: 2}, f.progress[0])
	assert.Equal(t, queue.Progress{Processed: 2, Total: 2}, f.progress[1])
}

func TestProcessFallsBackToOwnerName(t *testing.T) {
	f := newWorkerFixture()
	f.properties = append(f.properties, &model.Property{
		ID:    uuid.New(),
		Owner: "M DURAND Pierre",
	})

	w := f.worker(10)
	require.NoError(t, w.Process(context.Background(), job(f)))

	require.Len(t, f.lookups, 1)
	assert.Equal(t, "DURAND", f.lookups[0].LastName)
	assert.Equal(t, "Pierre", f.lookups[0].FirstName)
}

func TestProcessNotifiesWhenRequested(t *testing.T) {
	f := newWorkerFixture()
	f.addProperty("DUPONT Jean", "DUPONT", false)

	w := f.worker(10)
	j := job(f)
	j.NotifyEmail = "ops@acme.fr"
	require.NoError(t, w.Process(context.Background(), j))

	assert.Equal(t, []string{"ops@acme.fr"}, f.notified)
}
