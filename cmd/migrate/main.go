// Package main runs the one-shot legacy stock migration: every product with
// aggregate stock but no lots gets a single synthetic lot, then aggregate
// stock is reconciled from the lots.
package main

import (
	"context"
	"fmt"
	"os"

	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/reconcile"
	"lotledger/internal/infrastructure/numbering"
	"lotledger/internal/infrastructure/storage/postgres"
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

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)

	lotRepo := lot_repo.NewRepo(txm)
	movementRepo := ledger_repo.NewRepo(txm)
	productRepo := product_repo.NewRepo(txm)

	sequences := sequence.New(pool)
	movements := ledger.NewService(movementRepo, lotRepo, txm)
	store := lot.NewStore(lotRepo, movements, numbering.New(sequences), txm, cfg.Stock.ExpiryHorizon())
	recon := reconcile.NewService(productRepo, lotRepo, store, movements, txm)

	// The whole run executes serializably so a concurrent lot creation
	// cannot slip between the "has lots?" check and the synthetic receipt.
	var summary *reconcile.MigrationSummary
	err = txm.RunInTransactionWithOptions(ctx, postgres.SerializableTxOptions(), func(ctx context.Context) error {
		var err error
		summary, err = recon.Migrate(ctx)
		return err
	})
	if err != nil {
		log.Fatalw("migration failed", "error", err)
	}

	log.Infow("migration complete",
		"products_migrated", summary.ProductsMigrated,
		"lots_created", summary.LotsCreated,
		"failures", len(summary.Failures),
	)
	for _, f := range summary.Failures {
		log.Warnw("product skipped", "product_id", f.ProductID, "error", f.Err)
	}

	fmt.Printf("migrated %d products (%d lots created, %d failures)\n",
		summary.ProductsMigrated, summary.LotsCreated, len(summary.Failures))
	if len(summary.Failures) > 0 {
		os.Exit(1)
	}
}
