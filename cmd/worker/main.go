package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/proprios/search-api/internal/config"
	"github.com/proprios/search-api/internal/email"
	"github.com/proprios/search-api/internal/repository/postgres"
	"github.com/proprios/search-api/internal/service/enrichment"
	ledgerService "github.com/proprios/search-api/internal/service/ledger"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/metrics"
	"github.com/proprios/search-api/pkg/queue"
)

const healthPort = 9091

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.New("searchworker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	jobQueue, err := queue.New(queue.Config{
		URL:      cfg.Redis.URL,
		PoolSize: cfg.Redis.PoolSize,
	}, "enrichment:jobs", &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer jobQueue.Close()

	base := postgres.NewBaseRepository(db)
	orgRepo := postgres.NewOrganizationRepository(base)
	ledgerRepo := postgres.NewLedgerRepository(base)
	searchRepo := postgres.NewSearchRepository(base)
	propertyRepo := postgres.NewPropertyRepository(base)
	logRepo := postgres.NewEnrichmentLogRepository(base)

	ledgerSvc := ledgerService.NewService(orgRepo, ledgerRepo)
	provider := enrichment.NewHTTPProvider(enrichment.ProviderConfig{
		BaseURL:      cfg.Enrichment.ProviderURL,
		APIKey:       cfg.Enrichment.ProviderKey,
		PollAttempts: cfg.Enrichment.PollAttempts,
		PollDelay:    cfg.Enrichment.PollDelay(),
	})

	var notifier enrichment.Notifier
	if cfg.SMTP.Host != "" {
		notifier = email.NewService(cfg.SMTP, appLogger)
	}

	worker := enrichment.NewWorker(
		jobQueue, searchRepo, propertyRepo, logRepo, ledgerSvc,
		provider, notifier, appLogger,
		enrichment.WorkerConfig{
			PerContactCost:    cfg.Credits.PerContact,
			RequestsPerSecond: cfg.Enrichment.RequestsPerSecond,
		},
	).WithMetrics(appMetrics)

	// Operational endpoints for the worker process.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	healthSrv := &http.Server{Addr: fmt.Sprintf(":%d", healthPort), Handler: mux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start health server")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("worker stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("worker did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker exited properly")
}
