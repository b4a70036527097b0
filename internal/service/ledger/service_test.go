package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

// fakeStore implements the organization and ledger repositories in memory
// with the same serialization guarantees as the SQL implementation: the
// balance check and decrement happen under one lock, and the reset is
// conditional on the previous reset timestamp.
type fakeStore struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*model.Organization
	txs  []*model.CreditTransaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{orgs: make(map[uuid.UUID]*model.Organization)}
}

func (f *fakeStore) addOrg(balance, monthly int64, resetAt *time.Time) uuid.UUID {
	id := uuid.New()
	f.orgs[id] = &model.Organization{
		ID:             id,
		CreditBalance:  balance,
		MonthlyCredits: monthly,
		CreditsResetAt: resetAt,
	}
	return id
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*model.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, apperrors.NotFound("organization", nil)
	}
	cp := *org
	return &cp, nil
}

func (f *fakeStore) ResetCredits(_ context.Context, orgID uuid.UUID, monthlyCredits int64, prevResetAt *time.Time, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[orgID]
	if !ok {
		return false, apperrors.NotFound("organization", nil)
	}

	switch {
	case prevResetAt == nil && org.CreditsResetAt != nil:
		return false, nil
	case prevResetAt != nil && (org.CreditsResetAt == nil || !org.CreditsResetAt.Equal(*prevResetAt)):
		return false, nil
	}

	delta := monthlyCredits - org.CreditBalance
	org.CreditBalance = monthlyCredits
	org.CreditsResetAt = &now
	f.txs = append(f.txs, &model.CreditTransaction{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Amount:         delta,
		Type:           model.TransactionAdjustment,
		CreatedAt:      now,
	})
	return true, nil
}

func (f *fakeStore) Balance(_ context.Context, orgID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[orgID]
	if !ok {
		return 0, apperrors.NotFound("organization", nil)
	}
	return org.CreditBalance, nil
}

func (f *fakeStore) Credit(_ context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org := f.orgs[orgID]
	org.CreditBalance += amount
	f.txs = append(f.txs, &model.CreditTransaction{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Amount:         amount,
		Type:           txType,
		Description:    description,
		SearchID:       searchID,
	})
	return org.CreditBalance, nil
}

func (f *fakeStore) Debit(_ context.Context, orgID uuid.UUID, amount int64, txType model.TransactionType, description string, searchID *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org := f.orgs[orgID]
	if org.CreditBalance < amount {
		return 0, apperrors.InsufficientCredits(amount, org.CreditBalance)
	}
	org.CreditBalance -= amount
	f.txs = append(f.txs, &model.CreditTransaction{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Amount:         -amount,
		Type:           txType,
		Description:    description,
		SearchID:       searchID,
	})
	return org.CreditBalance, nil
}

func (f *fakeStore) Transactions(_ context.Context, orgID uuid.UUID, limit int) ([]*model.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CreditTransaction
	for i := len(f.txs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if f.txs[i].OrganizationID == orgID {
			out = append(out, f.txs[i])
		}
	}
	return out, nil
}

func (f *fakeStore) txSum(orgID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, tx := range f.txs {
		if tx.OrganizationID == orgID {
			sum += tx.Amount
		}
	}
	return sum
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, store)
}

func TestCreditAppendsTransaction(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(100, 0, nil)
	svc := newTestService(store)

	balance, err := svc.Credit(context.Background(), orgID, 50, model.TransactionPurchase, "pack purchase", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)

	txs, err := svc.Transactions(context.Background(), orgID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, model.TransactionPurchase, txs[0].Type)
}

func TestDebitInsufficientCredits(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(20, 0, nil)
	svc := newTestService(store)

	_, err := svc.Debit(context.Background(), orgID, 50, model.TransactionSearchCost, "search", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInsufficientCredits))

	// Balance untouched, no transaction created.
	balance, err := svc.Balance(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	txs, err := svc.Transactions(context.Background(), orgID, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(100, 0, nil)
	svc := newTestService(store)

	_, err := svc.Debit(context.Background(), orgID, 0, model.TransactionSearchCost, "", nil)
	assert.Error(t, err)
	_, err = svc.Debit(context.Background(), orgID, -5, model.TransactionSearchCost, "", nil)
	assert.Error(t, err)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(100, 0, nil)
	svc := newTestService(store)

	const workers = 10
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(context.Background(), orgID, 30, model.TransactionSearchCost, "", nil); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	// 100 / 30: exactly three debits can succeed.
	assert.Equal(t, 3, len(successes))

	balance, err := svc.Balance(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	assert.GreaterOrEqual(t, balance, int64(0))
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	store := newFakeStore()
	const initial = int64(200)
	old := time.Now().AddDate(0, 0, -40)
	orgID := store.addOrg(initial, 500, &old)
	svc := newTestService(store)
	ctx := context.Background()

	svc.Credit(ctx, orgID, 100, model.TransactionPurchase, "", nil)
	svc.Debit(ctx, orgID, 40, model.TransactionSearchCost, "", nil)
	svc.Debit(ctx, orgID, 25, model.TransactionEnrichmentCost, "", nil)
	svc.Credit(ctx, orgID, 10, model.TransactionRefund, "", nil)
	svc.Debit(ctx, orgID, 9999, model.TransactionSearchCost, "", nil) // rejected

	// The monthly reset must keep the ledger reconcilable too.
	won, err := svc.ResetIfDue(ctx, orgID)
	require.NoError(t, err)
	require.True(t, won)
	svc.Debit(ctx, orgID, 15, model.TransactionSearchCost, "", nil)

	balance, err := svc.Balance(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, balance-initial, store.txSum(orgID))
}

func TestResetIfDueFlatReassignment(t *testing.T) {
	store := newFakeStore()
	old := time.Now().AddDate(0, 0, -40)
	orgID := store.addOrg(37, 500, &old)
	svc := newTestService(store)

	won, err := svc.ResetIfDue(context.Background(), orgID)
	require.NoError(t, err)
	assert.True(t, won)

	// Flat reassignment: exactly 500, not 537.
	balance, err := svc.Balance(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	// The adjustment records the movement (37 to 500), not the allowance.
	txs, _ := svc.Transactions(context.Background(), orgID, 10)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TransactionAdjustment, txs[0].Type)
	assert.Equal(t, int64(463), txs[0].Amount)
}

func TestResetIfDueBalanceAboveAllowance(t *testing.T) {
	store := newFakeStore()
	old := time.Now().AddDate(0, 0, -40)
	orgID := store.addOrg(620, 500, &old)
	svc := newTestService(store)

	won, err := svc.ResetIfDue(context.Background(), orgID)
	require.NoError(t, err)
	assert.True(t, won)

	balance, _ := svc.Balance(context.Background(), orgID)
	assert.Equal(t, int64(500), balance)

	txs, _ := svc.Transactions(context.Background(), orgID, 10)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-120), txs[0].Amount)
}

func TestResetIfDueNotDue(t *testing.T) {
	store := newFakeStore()
	recent := time.Now().AddDate(0, 0, -10)
	orgID := store.addOrg(37, 500, &recent)
	svc := newTestService(store)

	won, err := svc.ResetIfDue(context.Background(), orgID)
	require.NoError(t, err)
	assert.False(t, won)

	balance, _ := svc.Balance(context.Background(), orgID)
	assert.Equal(t, int64(37), balance)
}

func TestResetIfDueFirstReset(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(0, 500, nil)
	svc := newTestService(store)

	won, err := svc.ResetIfDue(context.Background(), orgID)
	require.NoError(t, err)
	assert.True(t, won)

	balance, _ := svc.Balance(context.Background(), orgID)
	assert.Equal(t, int64(500), balance)
}

func TestResetIfDueNoMonthlyAllowance(t *testing.T) {
	store := newFakeStore()
	orgID := store.addOrg(42, 0, nil)
	svc := newTestService(store)

	won, err := svc.ResetIfDue(context.Background(), orgID)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestResetIfDueConcurrentSingleWinner(t *testing.T) {
	store := newFakeStore()
	old := time.Now().AddDate(0, 0, -40)
	orgID := store.addOrg(37, 500, &old)
	svc := newTestService(store)

	var wg sync.WaitGroup
	wins := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := svc.ResetIfDue(context.Background(), orgID)
			require.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	// Exactly one ADJUSTMENT recorded, balance exactly 500.
	balance, _ := svc.Balance(context.Background(), orgID)
	assert.Equal(t, int64(500), balance)
	txs, _ := svc.Transactions(context.Background(), orgID, 10)
	assert.Len(t, txs, 1)
}

func TestNextResetAt(t *testing.T) {
	store := newFakeStore()
	last := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	orgID := store.addOrg(0, 500, &last)
	svc := newTestService(store)

	next, err := svc.NextResetAt(context.Background(), orgID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), *next)

	neverReset := store.addOrg(0, 500, nil)
	next, err = svc.NextResetAt(context.Background(), neverReset)
	require.NoError(t, err)
	assert.Nil(t, next)
}
