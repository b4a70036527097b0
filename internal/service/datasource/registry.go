package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	gocache "github.com/patrickmn/go-cache"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
	apperrors "github.com/proprios/search-api/pkg/errors"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/metrics"
	"github.com/proprios/search-api/pkg/security"
)

const (
	maxSourceConns    = 10
	sourceIdleTimeout = 30 * time.Second
	activeCacheKey    = "datasource:active"
	activeCacheTTL    = time.Minute
)

// Registry owns data-source configuration and the connection pools opened
// against external property databases. Pools are created lazily and reused
// until the source configuration changes.
type Registry struct {
	repo      repository.DataSourceRepository
	encryptor security.Encryptor
	cache     *gocache.Cache
	logger    *logger.Logger

	mu      sync.Mutex
	pools   map[uuid.UUID]*sqlx.DB
	metrics *metrics.Metrics
}

// WithMetrics attaches prometheus instrumentation. Optional; tests run
// without it.
func (r *Registry) WithMetrics(m *metrics.Metrics) *Registry {
	r.metrics = m
	return r
}

func NewRegistry(repo repository.DataSourceRepository, encryptor security.Encryptor, log *logger.Logger) *Registry {
	return &Registry{
		repo:      repo,
		encryptor: encryptor,
		cache:     gocache.New(activeCacheTTL, 5*time.Minute),
		logger:    log,
		pools:     make(map[uuid.UUID]*sqlx.DB),
	}
}

// ActiveSource returns the single ACTIVE source of the given kind. Zero
// active sources of the kind is a configuration error surfaced to callers;
// more than one is resolved by taking the most recently updated.
func (r *Registry) ActiveSource(ctx context.Context, kind model.DataSourceKind) (*model.DataSource, error) {
	sources, err := r.activeSources(ctx)
	if err != nil {
		return nil, err
	}
	for _, ds := range sources {
		if ds.Kind == kind {
			return ds, nil
		}
	}
	return nil, apperrors.Configuration(fmt.Sprintf("no active %s data source configured", kind), nil)
}

func (r *Registry) activeSources(ctx context.Context) ([]*model.DataSource, error) {
	if cached, ok := r.cache.Get(activeCacheKey); ok {
		return cached.([]*model.DataSource), nil
	}
	sources, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Set(activeCacheKey, sources, activeCacheTTL)
	return sources, nil
}

// Pool returns the lazily created connection pool for a source.
func (r *Registry) Pool(ctx context.Context, ds *model.DataSource) (*sqlx.DB, error) {
	r.mu.Lock()
	if db, ok := r.pools[ds.ID]; ok {
		r.mu.Unlock()
		return db, nil
	}
	r.mu.Unlock()

	db, err := r.open(ctx, ds)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pools[ds.ID]; ok {
		db.Close()
		return existing, nil
	}
	r.pools[ds.ID] = db
	if r.metrics != nil {
		r.metrics.SourcePoolSize.Set(float64(len(r.pools)))
	}
	return db, nil
}

func (r *Registry) open(ctx context.Context, ds *model.DataSource) (*sqlx.DB, error) {
	password, err := r.encryptor.DecryptString(ds.Password)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("data source %s: cannot decrypt credentials", ds.Name), err)
	}
	sslMode := ds.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ds.Host, ds.Port, ds.Username, password, ds.Database, sslMode)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.ExternalService(ds.Name, err)
	}
	db.SetMaxOpenConns(maxSourceConns)
	db.SetConnMaxIdleTime(sourceIdleTimeout)

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(probeCtx, "SELECT 1"); err != nil {
		db.Close()
		return nil, apperrors.ExternalService(ds.Name, err)
	}
	return db, nil
}

// Invalidate drops the cached pool and configuration for a source. Called
// after any admin mutation.
func (r *Registry) Invalidate(id uuid.UUID) {
	r.cache.Delete(activeCacheKey)
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.pools[id]; ok {
		db.Close()
		delete(r.pools, id)
	}
	if r.metrics != nil {
		r.metrics.SourcePoolSize.Set(float64(len(r.pools)))
	}
}

// Close releases every open pool.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, db := range r.pools {
		db.Close()
		delete(r.pools, id)
	}
	if r.metrics != nil {
		r.metrics.SourcePoolSize.Set(0)
	}
}

// CreateSource validates identifiers, encrypts the password and stores the
// source. New sources start INACTIVE until tested.
func (r *Registry) CreateSource(ctx context.Context, ds *model.DataSource, password string) error {
	if err := ValidateIdentifiers(ds); err != nil {
		return apperrors.Validation(err.Error(), err)
	}
	encrypted, err := r.encryptor.EncryptString(password)
	if err != nil {
		return apperrors.Internal(err)
	}
	ds.Password = encrypted
	if ds.Status == "" {
		ds.Status = model.DataSourceStatusInactive
	}
	if err := r.repo.Create(ctx, ds); err != nil {
		return err
	}
	r.cache.Delete(activeCacheKey)
	return nil
}

// UpdateSource applies configuration changes. An empty password keeps the
// stored credentials.
func (r *Registry) UpdateSource(ctx context.Context, ds *model.DataSource, password string) error {
	if err := ValidateIdentifiers(ds); err != nil {
		return apperrors.Validation(err.Error(), err)
	}
	current, err := r.repo.Get(ctx, ds.ID)
	if err != nil {
		return err
	}
	if password != "" {
		encrypted, err := r.encryptor.EncryptString(password)
		if err != nil {
			return apperrors.Internal(err)
		}
		ds.Password = encrypted
	} else {
		ds.Password = current.Password
	}
	if err := r.repo.Update(ctx, ds); err != nil {
		return err
	}
	r.Invalidate(ds.ID)
	return nil
}

func (r *Registry) DeleteSource(ctx context.Context, id uuid.UUID) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.Invalidate(id)
	return nil
}

func (r *Registry) GetSource(ctx context.Context, id uuid.UUID) (*model.DataSource, error) {
	return r.repo.Get(ctx, id)
}

func (r *Registry) ListSources(ctx context.Context) ([]*model.DataSource, error) {
	return r.repo.List(ctx)
}

// ReplaceMappings swaps a source's column mappings after validating every
// field and column name.
func (r *Registry) ReplaceMappings(ctx context.Context, id uuid.UUID, mappings map[string]string) error {
	ds, err := r.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	ds.Mappings = mappings
	if err := ValidateIdentifiers(ds); err != nil {
		return apperrors.Validation(err.Error(), err)
	}
	if err := r.repo.ReplaceMappings(ctx, id, mappings); err != nil {
		return err
	}
	r.Invalidate(id)
	return nil
}

// TestConnection probes a source end to end: connect, SELECT 1, count the
// configured table. The result is persisted and flips the source to ACTIVE
// or ERROR.
func (r *Registry) TestConnection(ctx context.Context, id uuid.UUID) (*model.TestResult, error) {
	ds, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	db, err := r.open(ctx, ds)
	if err != nil {
		return r.recordTestFailure(ctx, id, err)
	}
	defer db.Close()

	var count int64
	countCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedTable(ds))
	if err := db.GetContext(countCtx, &count, query); err != nil {
		return r.recordTestFailure(ctx, id, err)
	}

	result := &model.TestResult{
		Success:     true,
		Message:     fmt.Sprintf("connected in %dms, %d records", time.Since(started).Milliseconds(), count),
		RecordCount: &count,
	}
	if err := r.repo.UpdateTestResult(ctx, id, model.DataSourceStatusActive, result, time.Now()); err != nil {
		return nil, err
	}
	r.Invalidate(id)
	r.logger.Info("data source test succeeded", "source_id", id.String(), "record_count", count)
	return result, nil
}

func (r *Registry) recordTestFailure(ctx context.Context, id uuid.UUID, cause error) (*model.TestResult, error) {
	result := &model.TestResult{Success: false, Message: cause.Error()}
	if err := r.repo.UpdateTestResult(ctx, id, model.DataSourceStatusError, result, time.Now()); err != nil {
		return nil, err
	}
	r.Invalidate(id)
	return result, nil
}

// Columns introspects the configured table and reports each column alongside
// the semantic field currently mapped to it.
func (r *Registry) Columns(ctx context.Context, id uuid.UUID) ([]*model.SourceColumnInfo, error) {
	ds, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	db, err := r.Pool(ctx, ds)
	if err != nil {
		return nil, err
	}

	schema := ds.Schema
	if schema == "" {
		schema = "public"
	}
	infos := []*model.SourceColumnInfo{}
	err = db.SelectContext(ctx, &infos, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, ds.Table)
	if err != nil {
		return nil, apperrors.ExternalService(ds.Name, err)
	}

	byColumn := make(map[string]string, len(ds.Mappings))
	for field, col := range ds.Mappings {
		byColumn[col] = field
	}
	for _, info := range infos {
		info.MappedField = byColumn[info.Name]
	}
	return infos, nil
}
