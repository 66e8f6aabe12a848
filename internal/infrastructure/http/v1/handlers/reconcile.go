package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/types"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// ReconcileHandler handles aggregate stock reconciliation and legacy
// migration endpoints.
type ReconcileHandler struct {
	*BaseHandler
	ops *lotops.Facade
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(base *BaseHandler, ops *lotops.Facade) *ReconcileHandler {
	return &ReconcileHandler{BaseHandler: base, ops: ops}
}

// AdjustStock sets a product's aggregate stock and lets the engine derive
// the lot-level adjustments.
// POST /api/v1/products/:id/stock/adjust
func (h *ReconcileHandler) AdjustStock(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.ops.AdjustStockDirectly(
		c.Request.Context(),
		productID,
		types.NewQuantityFromFloat64(req.NewStock),
		h.GetActorID(c),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if l == nil {
		// Zero target on a product with no lots changes nothing.
		h.Success(c, "stock unchanged")
		return
	}
	h.OK(c, dto.FromLot(l, h.ops.StatusOf(l)))
}

// SyncStock recomputes one product's aggregate stock from its lots.
// POST /api/v1/products/:id/stock/sync
func (h *ReconcileHandler) SyncStock(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.ops.SyncProductStock(c.Request.Context(), productID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, "stock synchronized")
}

// SyncAllStocks recomputes aggregate stock for every product. Per-product
// failures are reported, not fatal.
// POST /api/v1/stock/sync
func (h *ReconcileHandler) SyncAllStocks(c *gin.Context) {
	failures, err := h.ops.SyncAllStocks(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.SyncAllResponse{
		Success:  len(failures) == 0,
		Failures: dto.FromSyncErrors(failures),
	})
}

// EnsureLots creates a synthetic migration lot for one product that has
// legacy stock but no lots yet.
// POST /api/v1/products/:id/lots/ensure
func (h *ReconcileHandler) EnsureLots(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	l, err := h.ops.EnsureProductHasLots(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if l == nil {
		h.Success(c, "product already has lots")
		return
	}
	h.OK(c, dto.FromLot(l, h.ops.StatusOf(l)))
}

// EnsureAllLots sweeps every product, creating synthetic migration lots
// where legacy stock exists without lots. Per-product failures are reported.
// POST /api/v1/stock/ensure-lots
func (h *ReconcileHandler) EnsureAllLots(c *gin.Context) {
	created, failures, err := h.ops.EnsureAllProductsHaveLots(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.MigrationResponse{
		ProductsMigrated: created,
		LotsCreated:      created,
		Failures:         dto.FromSyncErrors(failures),
	})
}

// Migrate runs the full legacy stock migration: every product with stock
// but no lots gets one synthetic lot, then aggregates are reconciled.
// POST /api/v1/stock/migrate
func (h *ReconcileHandler) Migrate(c *gin.Context) {
	summary, err := h.ops.Migrate(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromMigrationSummary(summary))
}
