// Package main is the entry point for the lotledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/domain/reconcile"
	"lotledger/internal/infrastructure/auth"
	v1 "lotledger/internal/infrastructure/http/v1"
	"lotledger/internal/infrastructure/numbering"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/costing_repo"
	"lotledger/internal/infrastructure/storage/postgres/ledger_repo"
	"lotledger/internal/infrastructure/storage/postgres/lot_repo"
	"lotledger/internal/infrastructure/storage/postgres/product_repo"
	"lotledger/pkg/config"
	"lotledger/pkg/logger"
	"lotledger/pkg/sequence"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting lotledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DB.ConnectionString())
	if cfg.DB.MaxConns > 0 {
		poolCfg.MaxConns = cfg.DB.MaxConns
	}
	if cfg.DB.MinConns > 0 {
		poolCfg.MinConns = cfg.DB.MinConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	// --- Repositories ---
	lotRepo := lot_repo.NewRepo(txm)
	movementRepo := ledger_repo.NewRepo(txm)
	productRepo := product_repo.NewRepo(txm)
	settingsRepo := costing_repo.NewRepo(txm)

	// --- Domain services ---
	sequences := sequence.New(pool)
	lotNumbers := numbering.New(sequences)

	movements := ledger.NewService(movementRepo, lotRepo, txm)
	store := lot.NewStore(lotRepo, movements, lotNumbers, txm, cfg.Stock.ExpiryHorizon())
	valuation := costing.NewService(lotRepo, settingsRepo, txm, costing.Method(cfg.Stock.DefaultCostingMethod))
	recon := reconcile.NewService(productRepo, lotRepo, store, movements, txm)

	auditor, err := postgres.NewLotAuditor(txm)
	if err != nil {
		log.Fatalw("failed to initialize audit log", "error", err)
	}

	ops := lotops.NewFacade(store, movements, valuation, recon, lotRepo, productRepo, txm, auditor)

	// --- Idempotency ---
	idempotencyStore := postgres.NewIdempotencyStore(txm, cfg.Stock.IdempotencyTTL)

	// --- JWT ---
	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is required")
	}
	jwtValidator := auth.NewJWTValidator(auth.JWTConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:             pool,
		Logger:           log,
		JWTValidator:     jwtValidator,
		Ops:              ops,
		Auditor:          auditor,
		IdempotencyStore: idempotencyStore,
	})

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}
