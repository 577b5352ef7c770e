package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/config"
	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/handler"
	"github.com/paygrid/settlement-engine-go/internal/infra/bankrail"
	"github.com/paygrid/settlement-engine-go/internal/infra/cache"
	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/infra/resilience"
	"github.com/paygrid/settlement-engine-go/internal/infra/store"
	"github.com/paygrid/settlement-engine-go/internal/port"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("db_path", cfg.DBPath),
		zap.String("settlement_timezone", cfg.SettlementTimezone),
		zap.Duration("bank_rail_timeout", cfg.BankRailTimeout),
		zap.Duration("config_cache_ttl", cfg.ConfigCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	// --- Timezone ---
	loc, err := time.LoadLocation(cfg.SettlementTimezone)
	if err != nil {
		logger.Fatal("invalid settlement timezone", zap.String("zone", cfg.SettlementTimezone), zap.Error(err))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "settlement-engine")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Persistence ---
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("db_path", cfg.DBPath), zap.Error(err))
	}
	defer db.Close()

	settlementStore := store.NewSettlementStore(db)
	ledgerStore := store.NewLedgerStore(db)
	configStore := store.NewConfigStore(db)
	reconStore := store.NewReconciliationStore(db)
	analyticsStore := store.NewAnalyticsStore(db)

	// --- Cache ---
	configCache := cache.New[domain.ClientSettlementConfig](cfg.ConfigCacheTTL)

	// --- Bank rail ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	var rail port.BankRail
	if cfg.BankRailURL != "" {
		logger.Info("using HTTP bank rail", zap.String("bank_rail_url", cfg.BankRailURL))
		cb := resilience.NewCircuitBreaker("bank-rail")
		httpClient := &http.Client{Timeout: cfg.BankRailTimeout}
		rail = bankrail.NewClient(httpClient, cfg.BankRailURL, cb, resilienceCfg, logger)
	} else {
		logger.Warn("BANK_RAIL_URL not set, using in-process rail stub")
		rail = bankrail.NewStub()
	}

	// --- Services ---
	configSvc := service.NewConfigService(configStore, configCache, metrics, logger)
	settlementSvc := service.NewSettlementService(
		settlementStore,
		ledgerStore,
		configSvc,
		rail,
		loc,
		cfg.BankRailTimeout,
		cfg.MaxConcurrency,
		metrics,
		logger,
	)
	reconSvc := service.NewReconciliationService(reconStore, settlementStore, metrics, logger)
	analyticsSvc := service.NewAnalyticsService(analyticsStore, loc, logger)

	// --- Router ---
	router := handler.NewRouter(
		handler.Services{
			Settlements:     settlementSvc,
			Reconciliations: reconSvc,
			Configs:         configSvc,
			Analytics:       analyticsSvc,
		},
		handler.AuthConfig{JWTSecret: cfg.JWTSecret, DevAuth: cfg.DevAuth},
		metrics,
		logger,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
