package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/proprios/search-api/internal/config"
	"github.com/proprios/search-api/internal/handler"
	creditHandler "github.com/proprios/search-api/internal/handler/credit"
	dataSourceHandler "github.com/proprios/search-api/internal/handler/datasource"
	searchHandler "github.com/proprios/search-api/internal/handler/search"
	"github.com/proprios/search-api/internal/middleware"
	"github.com/proprios/search-api/internal/repository/postgres"
	"github.com/proprios/search-api/internal/router"
	dataSourceService "github.com/proprios/search-api/internal/service/datasource"
	ledgerService "github.com/proprios/search-api/internal/service/ledger"
	searchService "github.com/proprios/search-api/internal/service/search"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/metrics"
	"github.com/proprios/search-api/pkg/queue"
	"github.com/proprios/search-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.New("searchapi")

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

	encryptor, err := security.NewEncryptor(cfg.Encryption.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential encryption")
	}

	// Repositories
	base := postgres.NewBaseRepository(db)
	orgRepo := postgres.NewOrganizationRepository(base)
	ledgerRepo := postgres.NewLedgerRepository(base)
	searchRepo := postgres.NewSearchRepository(base)
	propertyRepo := postgres.NewPropertyRepository(base)
	dataSourceRepo := postgres.NewDataSourceRepository(base)

	// Services
	ledgerSvc := ledgerService.NewService(orgRepo, ledgerRepo).WithMetrics(appMetrics)
	registry := dataSourceService.NewRegistry(dataSourceRepo, encryptor, appLogger).WithMetrics(appMetrics)
	defer registry.Close()
	queryRouter := dataSourceService.NewRouter(registry, appLogger).WithMetrics(appMetrics)
	searchSvc := searchService.NewService(
		searchRepo, propertyRepo, orgRepo, ledgerSvc, queryRouter, jobQueue,
		searchService.Pricing{
			CreditsPerResult: cfg.Credits.PerResult,
			PerContactCost:   cfg.Credits.PerContact,
		},
	).WithMetrics(appMetrics)

	// Middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT)
	h := handler.NewHandler(db)

	r := router.NewRouter(
		authMiddleware,
		searchHandler.NewHandler(searchSvc),
		creditHandler.NewHandler(ledgerSvc),
		dataSourceHandler.NewHandler(registry),
		h,
		router.Config{
			RateLimit:     rate.Limit(100),
			RateBurst:     200,
			MetricsPrefix: "searchapi_http",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
