// Package reconcile keeps the product's aggregate stock figure equal to the
// sum of its lots' remaining quantities, and bootstraps lots for products
// created before lot tracking existed.
package reconcile

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/product"
	"lotledger/pkg/logger"
)

// migrationReason marks movements created while bootstrapping legacy stock.
const migrationReason = "migration"

// Service reconciles aggregate product stock with lot state. It is the only
// writer of the product's stock field; the ledger remains the source of
// truth, so every write here is idempotent and safe to re-run.
type Service struct {
	products  product.Gateway
	lots      lot.Repository
	store     *lot.Store
	movements *ledger.Service
	txm       tx.Manager
}

// NewService creates a reconciliation service.
func NewService(products product.Gateway, lots lot.Repository, store *lot.Store, movements *ledger.Service, txm tx.Manager) *Service {
	return &Service{
		products:  products,
		lots:      lots,
		store:     store,
		movements: movements,
		txm:       txm,
	}
}

// SyncProductStock recomputes the sum of remaining quantities across the
// product's lots and writes it to the product's stock field. Idempotent.
func (s *Service) SyncProductStock(ctx context.Context, productID id.ID) error {
	if id.IsNil(productID) {
		return apperror.NewValidation("product_id is required")
	}
	sum, err := s.lots.SumRemaining(ctx, productID)
	if err != nil {
		return fmt.Errorf("sum remaining quantity: %w", err)
	}
	if err := s.products.UpdateStock(ctx, productID, sum); err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	logger.Debug(ctx, "product stock synced", "product_id", productID, "stock", sum)
	return nil
}

// SyncError reports one product's failure during a sweep.
type SyncError struct {
	ProductID id.ID
	Err       error
}

func (e SyncError) Error() string {
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

// SyncAllStocks applies SyncProductStock to every product. A single
// product's failure never aborts the sweep; failures are collected and
// returned.
func (s *Service) SyncAllStocks(ctx context.Context) ([]SyncError, error) {
	productIDs, err := s.products.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var failures []SyncError
	for _, pid := range productIDs {
		if err := s.SyncProductStock(ctx, pid); err != nil {
			logger.Warn(ctx, "stock sync failed", "product_id", pid, "error", err)
			failures = append(failures, SyncError{ProductID: pid, Err: err})
		}
	}
	logger.Info(ctx, "stock sweep finished", "products", len(productIDs), "failed", len(failures))
	return failures, nil
}

// EnsureProductHasLots bootstraps lot tracking for a legacy product. If the
// product has zero lots but a positive stock figure, it creates exactly one
// synthetic lot carrying that stock at the product's known purchase price
// (or zero). Products that already have lots are left alone, so the call is
// idempotent. Returns the created lot, or nil when nothing was done.
func (s *Service) EnsureProductHasLots(ctx context.Context, productID id.ID) (*lot.StockLot, error) {
	count, err := s.lots.CountByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("count lots: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Stock.IsPositive() {
		return nil, nil
	}

	price := p.PurchasePrice
	if price.IsNegative() {
		price = types.ZeroMoney()
	}

	created, err := s.store.CreateLot(ctx, lot.CreateLotInput{
		ProductID:       productID,
		InitialQuantity: p.Stock,
		PurchasePrice:   price,
		Reason:          migrationReason,
		Actor:           "system",
	})
	if err != nil {
		return nil, fmt.Errorf("create migration lot: %w", err)
	}

	logger.Info(ctx, "legacy stock migrated to lot",
		"product_id", productID,
		"lot_id", created.ID,
		"quantity", created.InitialQuantity,
	)
	return created, nil
}

// EnsureAllProductsHaveLots applies EnsureProductHasLots across every
// product with the same partial-failure tolerance as SyncAllStocks.
func (s *Service) EnsureAllProductsHaveLots(ctx context.Context) (created int, failures []SyncError, err error) {
	productIDs, err := s.products.ListIDs(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("list products: %w", err)
	}

	for _, pid := range productIDs {
		l, err := s.EnsureProductHasLots(ctx, pid)
		if err != nil {
			logger.Warn(ctx, "lot bootstrap failed", "product_id", pid, "error", err)
			failures = append(failures, SyncError{ProductID: pid, Err: err})
			continue
		}
		if l != nil {
			created++
		}
	}
	return created, failures, nil
}

// MigrationSummary reports the outcome of Migrate.
type MigrationSummary struct {
	ProductsMigrated int         `json:"productsMigrated"`
	LotsCreated      int         `json:"lotsCreated"`
	Failures         []SyncError `json:"-"`
}

// Migrate bootstraps lots for every legacy product and reports a summary.
// Re-running it creates nothing new.
func (s *Service) Migrate(ctx context.Context) (*MigrationSummary, error) {
	created, failures, err := s.EnsureAllProductsHaveLots(ctx)
	if err != nil {
		return nil, err
	}
	summary := &MigrationSummary{
		// Each migrated product gets exactly one synthetic lot.
		ProductsMigrated: created,
		LotsCreated:      created,
		Failures:         failures,
	}
	logger.Info(ctx, "migration finished",
		"products_migrated", summary.ProductsMigrated,
		"lots_created", summary.LotsCreated,
		"failed", len(failures),
	)
	return summary, nil
}

// AdjustStockDirectly is the back-compat path for callers that only know a
// product's aggregate figure. With exactly one lot the target maps cleanly;
// with several, the delta lands on the most recently created lot that still
// has quantity, and is rejected with AmbiguousAdjustment when that lot
// cannot absorb it. With no lots a positive target bootstraps a synthetic
// lot the same way migration does.
func (s *Service) AdjustStockDirectly(ctx context.Context, productID id.ID, newStock types.Quantity, actor string) (*lot.StockLot, error) {
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product_id is required")
	}
	if newStock.IsNegative() {
		return nil, apperror.NewInvalidQuantity("stock must not be negative")
	}

	var adjusted *lot.StockLot
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListByProduct(ctx, productID, true)
		if err != nil {
			return err
		}

		switch len(lots) {
		case 0:
			if newStock.IsZero() {
				return nil
			}
			p, err := s.products.GetByID(ctx, productID)
			if err != nil {
				return err
			}
			price := p.PurchasePrice
			if price.IsNegative() {
				price = types.ZeroMoney()
			}
			adjusted, err = s.store.CreateLot(ctx, lot.CreateLotInput{
				ProductID:       productID,
				InitialQuantity: newStock,
				PurchasePrice:   price,
				Reason:          "direct stock adjustment",
				Actor:           actor,
			})
			return err

		case 1:
			adjusted, err = s.movements.AdjustTo(ctx, lots[0].ID, newStock, "direct stock adjustment", actor)
			return err

		default:
			var current types.Quantity
			for _, l := range lots {
				current += l.RemainingQuantity
			}
			delta := newStock - current

			target := mostRecentWithQuantity(lots)
			if target == nil {
				// Every lot is sold out; only an increase is representable.
				target = mostRecent(lots)
			}
			newRemaining := target.RemainingQuantity + delta
			if newRemaining.IsNegative() || newRemaining > target.InitialQuantity {
				return apperror.NewAmbiguousAdjustment(productID.String(),
					"aggregate adjustment exceeds what the most recent lot can absorb; adjust lots individually").
					WithDetail("lot_id", target.ID.String()).
					WithDetail("delta", delta.Float64())
			}
			adjusted, err = s.movements.AdjustTo(ctx, target.ID, newRemaining, "direct stock adjustment", actor)
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	if err := s.SyncProductStock(ctx, productID); err != nil {
		return nil, err
	}
	return adjusted, nil
}

func mostRecentWithQuantity(lots []*lot.StockLot) *lot.StockLot {
	var best *lot.StockLot
	for _, l := range lots {
		if !l.RemainingQuantity.IsPositive() {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	return best
}

func mostRecent(lots []*lot.StockLot) *lot.StockLot {
	var best *lot.StockLot
	for _, l := range lots {
		if best == nil || l.CreatedAt.After(best.CreatedAt) {
			best = l
		}
	}
	return best
}
