// Package lotops is the boundary collaborators call into: lot creation,
// quantity changes, movement recording, valuation queries and bulk actions.
// It validates and orchestrates; the invariants live in the packages below.
package lotops

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/product"
	"lotledger/internal/domain/reconcile"
	"lotledger/pkg/logger"
)

// ChangeAuditor records lot mutations for the audit trail. Auditing is
// best-effort; a failed audit write never fails the business operation.
type ChangeAuditor interface {
	LogChange(ctx context.Context, action string, lotID id.ID, actor string, payload any)
}

// Facade exposes the engine's operations to collaborators.
type Facade struct {
	store     *lot.Store
	movements *ledger.Service
	valuation *costing.Service
	recon     *reconcile.Service
	lots      lot.Repository
	products  product.Gateway
	txm       tx.Manager
	auditor   ChangeAuditor
}

// NewFacade creates the facade. auditor may be nil.
func NewFacade(
	store *lot.Store,
	movements *ledger.Service,
	valuation *costing.Service,
	recon *reconcile.Service,
	lots lot.Repository,
	products product.Gateway,
	txm tx.Manager,
	auditor ChangeAuditor,
) *Facade {
	return &Facade{
		store:     store,
		movements: movements,
		valuation: valuation,
		recon:     recon,
		lots:      lots,
		products:  products,
		txm:       txm,
		auditor:   auditor,
	}
}

// --- Lot queries ---

// GetProductLots returns a product's lots, excluding sold out ones unless
// includeEmpty.
func (f *Facade) GetProductLots(ctx context.Context, productID id.ID, includeEmpty bool) ([]*lot.StockLot, error) {
	return f.store.GetLotsForProduct(ctx, productID, includeEmpty)
}

// GetLotByID returns one lot or NotFound.
func (f *Facade) GetLotByID(ctx context.Context, lotID id.ID) (*lot.StockLot, error) {
	return f.store.GetLotByID(ctx, lotID)
}

// ExpiringLots returns lots with quantity on hand that expire within the
// configured horizon.
func (f *Facade) ExpiringLots(ctx context.Context) ([]*lot.StockLot, error) {
	return f.store.ExpiringLots(ctx)
}

// StatusOf derives a lot's status using the configured horizon.
func (f *Facade) StatusOf(l *lot.StockLot) lot.Status {
	return f.store.StatusOf(l)
}

// --- Lot mutations ---

// CreateLot creates a lot for an existing product and brings the product's
// aggregate stock up to date.
func (f *Facade) CreateLot(ctx context.Context, in lot.CreateLotInput) (*lot.StockLot, error) {
	exists, err := f.products.Exists(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.NewNotFound("product", in.ProductID.String())
	}

	created, err := f.store.CreateLot(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := f.recon.SyncProductStock(ctx, in.ProductID); err != nil {
		return nil, err
	}

	f.audit(ctx, "lot.create", created.ID, in.Actor, created)
	return created, nil
}

// UpdateQuantity brings a lot's remaining quantity to an absolute target,
// recording an ADJUSTMENT movement, then resyncs the product aggregate.
func (f *Facade) UpdateQuantity(ctx context.Context, lotID id.ID, newRemaining types.Quantity, reason, actor string) (*lot.StockLot, error) {
	adjusted, err := f.store.AdjustQuantity(ctx, lotID, newRemaining, reason, actor)
	if err != nil {
		return nil, err
	}
	if err := f.recon.SyncProductStock(ctx, adjusted.ProductID); err != nil {
		return nil, err
	}

	f.audit(ctx, "lot.adjust", lotID, actor, adjusted)
	return adjusted, nil
}

// RecordMovement appends a signed movement against a lot and resyncs the
// product aggregate.
func (f *Facade) RecordMovement(ctx context.Context, in ledger.RecordInput) (*ledger.StockMovement, error) {
	movement, err := f.movements.Record(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := f.recon.SyncProductStock(ctx, movement.ProductID); err != nil {
		return nil, err
	}

	f.audit(ctx, "movement.record", movement.LotID, in.Actor, movement)
	return movement, nil
}

// --- Ledger queries ---

// GetMovements returns a product's movements newest first.
func (f *Facade) GetMovements(ctx context.Context, productID id.ID, limit, offset int) ([]*ledger.StockMovement, error) {
	return f.movements.GetMovements(ctx, productID, limit, offset)
}

// CountMovements returns the total number of movements for a product.
func (f *Facade) CountMovements(ctx context.Context, productID id.ID) (int64, error) {
	return f.movements.CountMovements(ctx, productID)
}

// VerifyLot replays a lot's ledger and checks it reproduces the current
// remaining quantity.
func (f *Facade) VerifyLot(ctx context.Context, lotID id.ID) error {
	return f.movements.VerifyLot(ctx, lotID)
}

// --- Valuation ---

// GetValuationSettings returns a product's costing settings, defaulted when
// none are stored.
func (f *Facade) GetValuationSettings(ctx context.Context, productID id.ID) (*costing.ValuationSettings, error) {
	return f.valuation.GetValuationSettings(ctx, productID)
}

// SetValuationSettings stores a product's costing method.
func (f *Facade) SetValuationSettings(ctx context.Context, productID id.ID, method costing.Method) (*costing.ValuationSettings, error) {
	return f.valuation.SetValuationSettings(ctx, productID, method)
}

// CalculateAverageCost returns the product's unit cost under its configured
// method.
func (f *Facade) CalculateAverageCost(ctx context.Context, productID id.ID) (types.Money, error) {
	return f.valuation.CalculateAverageCost(ctx, productID)
}

// Valuation returns the full valuation summary for a product.
func (f *Facade) Valuation(ctx context.Context, productID id.ID) (*costing.ProductValuation, error) {
	return f.valuation.Valuation(ctx, productID)
}

// --- Reconciliation ---

// SyncProductStock recomputes one product's aggregate stock from its lots.
func (f *Facade) SyncProductStock(ctx context.Context, productID id.ID) error {
	return f.recon.SyncProductStock(ctx, productID)
}

// SyncAllStocks sweeps every product, collecting per-product failures.
func (f *Facade) SyncAllStocks(ctx context.Context) ([]reconcile.SyncError, error) {
	return f.recon.SyncAllStocks(ctx)
}

// EnsureProductHasLots bootstraps lot tracking for one legacy product.
func (f *Facade) EnsureProductHasLots(ctx context.Context, productID id.ID) (*lot.StockLot, error) {
	return f.recon.EnsureProductHasLots(ctx, productID)
}

// EnsureAllProductsHaveLots bootstraps every legacy product.
func (f *Facade) EnsureAllProductsHaveLots(ctx context.Context) (int, []reconcile.SyncError, error) {
	return f.recon.EnsureAllProductsHaveLots(ctx)
}

// Migrate runs the one-shot legacy migration and reports a summary.
func (f *Facade) Migrate(ctx context.Context) (*reconcile.MigrationSummary, error) {
	return f.recon.Migrate(ctx)
}

// AdjustStockDirectly adjusts a product's aggregate stock for callers that
// do not know individual lots.
func (f *Facade) AdjustStockDirectly(ctx context.Context, productID id.ID, newStock types.Quantity, actor string) (*lot.StockLot, error) {
	adjusted, err := f.recon.AdjustStockDirectly(ctx, productID, newStock, actor)
	if err != nil {
		return nil, err
	}
	if adjusted != nil {
		f.audit(ctx, "stock.adjust_directly", adjusted.ID, actor, adjusted)
	}
	return adjusted, nil
}

// --- Bulk actions ---

// BulkActionType enumerates the supported batch operations.
type BulkActionType string

const (
	BulkDelete       BulkActionType = "delete"
	BulkUpdateExpiry BulkActionType = "update_expiry"
	BulkExport       BulkActionType = "export"
)

// BulkActionData carries action-specific parameters.
type BulkActionData struct {
	// ExpiryDate is required for update_expiry. Backdating is allowed;
	// expiry corrections are a legitimate use.
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`

	// Force lets delete zero out lots that still have quantity, recording
	// the writeoff as an ADJUSTMENT movement before removal.
	Force bool `json:"force,omitempty"`
}

// ExportRow is a snapshot of one lot for the caller to serialize.
type ExportRow struct {
	ID                id.ID          `json:"id"`
	ProductID         id.ID          `json:"productId"`
	LotNumber         string         `json:"lotNumber"`
	InitialQuantity   types.Quantity `json:"initialQuantity"`
	RemainingQuantity types.Quantity `json:"remainingQuantity"`
	PurchasePrice     types.Money    `json:"purchasePrice"`
	ExpiryDate        *time.Time     `json:"expiryDate,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	Status            lot.Status     `json:"status"`
	TotalValue        types.Money    `json:"totalValue"`
}

// BulkResult reports a batch outcome.
type BulkResult struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Affected int         `json:"affected"`
	Export   []ExportRow `json:"export,omitempty"`
}

// BulkAction applies one action to a set of lots, all-or-nothing. Every lot
// is validated before anything is mutated; a batch that fails validation for
// one lot leaves all of them untouched.
func (f *Facade) BulkAction(ctx context.Context, lotIDs []id.ID, action BulkActionType, data BulkActionData, actor string) (*BulkResult, error) {
	if len(lotIDs) == 0 {
		return nil, apperror.NewValidation("lot_ids must not be empty")
	}
	seen := make(map[id.ID]struct{}, len(lotIDs))
	for _, lid := range lotIDs {
		if id.IsNil(lid) {
			return nil, apperror.NewValidation("lot_ids must not contain empty ids")
		}
		if _, dup := seen[lid]; dup {
			return nil, apperror.NewValidation("lot_ids must not contain duplicates")
		}
		seen[lid] = struct{}{}
	}

	switch action {
	case BulkDelete:
		return f.bulkDelete(ctx, lotIDs, data.Force, actor)
	case BulkUpdateExpiry:
		return f.bulkUpdateExpiry(ctx, lotIDs, data.ExpiryDate, actor)
	case BulkExport:
		return f.bulkExport(ctx, lotIDs)
	default:
		return nil, apperror.NewValidation(fmt.Sprintf("unknown bulk action %q", action))
	}
}

func (f *Facade) bulkDelete(ctx context.Context, lotIDs []id.ID, force bool, actor string) (*BulkResult, error) {
	products := make(map[id.ID]struct{})

	err := f.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		lots, err := f.lots.ListByIDsForUpdate(ctx, lotIDs)
		if err != nil {
			return err
		}

		// Validate the whole batch before touching anything.
		for _, l := range lots {
			if l.RemainingQuantity.IsPositive() && !force {
				return apperror.NewNonEmptyLotDeletion(l.ID.String(), l.RemainingQuantity.Float64())
			}
		}

		for _, l := range lots {
			if l.RemainingQuantity.IsPositive() {
				// Forced: write off the quantity on the ledger first so the
				// removal leaves a trace.
				if _, err := f.movements.AdjustTo(ctx, l.ID, 0, "bulk delete writeoff", actor); err != nil {
					return err
				}
			}
			if err := f.lots.Delete(ctx, l.ID); err != nil {
				return err
			}
			products[l.ProductID] = struct{}{}
			f.audit(ctx, "lot.delete", l.ID, actor, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for pid := range products {
		if err := f.recon.SyncProductStock(ctx, pid); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "bulk delete applied", "lots", len(lotIDs), "actor", actor)
	return &BulkResult{
		Success:  true,
		Message:  fmt.Sprintf("deleted %d lots", len(lotIDs)),
		Affected: len(lotIDs),
	}, nil
}

func (f *Facade) bulkUpdateExpiry(ctx context.Context, lotIDs []id.ID, expiry *time.Time, actor string) (*BulkResult, error) {
	if expiry == nil {
		return nil, apperror.NewValidation("expiry_date is required for update_expiry")
	}

	err := f.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		lots, err := f.lots.ListByIDsForUpdate(ctx, lotIDs)
		if err != nil {
			return err
		}
		for _, l := range lots {
			if err := f.lots.SetExpiry(ctx, l.ID, expiry); err != nil {
				return err
			}
			f.audit(ctx, "lot.update_expiry", l.ID, actor, expiry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bulk expiry update applied", "lots", len(lotIDs), "expiry", expiry)
	return &BulkResult{
		Success:  true,
		Message:  fmt.Sprintf("updated expiry on %d lots", len(lotIDs)),
		Affected: len(lotIDs),
	}, nil
}

func (f *Facade) bulkExport(ctx context.Context, lotIDs []id.ID) (*BulkResult, error) {
	lots, err := f.lots.ListByIDs(ctx, lotIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, ExportRow{
			ID:                l.ID,
			ProductID:         l.ProductID,
			LotNumber:         l.LotNumber,
			InitialQuantity:   l.InitialQuantity,
			RemainingQuantity: l.RemainingQuantity,
			PurchasePrice:     l.PurchasePrice,
			ExpiryDate:        l.ExpiryDate,
			CreatedAt:         l.CreatedAt,
			Status:            f.store.StatusOf(l),
			TotalValue:        l.TotalValue(),
		})
	}

	return &BulkResult{
		Success:  true,
		Message:  fmt.Sprintf("exported %d lots", len(rows)),
		Affected: len(rows),
		Export:   rows,
	}, nil
}

func (f *Facade) audit(ctx context.Context, action string, lotID id.ID, actor string, payload any) {
	if f.auditor == nil {
		return
	}
	f.auditor.LogChange(ctx, action, lotID, actor, payload)
}
