package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/http/v1/dto"
	"lotledger/internal/infrastructure/storage/postgres"
)

// LotsHandler handles stock lot endpoints.
type LotsHandler struct {
	*BaseHandler
	ops     *lotops.Facade
	auditor *postgres.LotAuditor
}

// NewLotsHandler creates a new lots handler.
func NewLotsHandler(base *BaseHandler, ops *lotops.Facade, auditor *postgres.LotAuditor) *LotsHandler {
	return &LotsHandler{BaseHandler: base, ops: ops, auditor: auditor}
}

// Create opens a new lot with its initial RECEIPT movement.
// POST /api/v1/lots
func (h *LotsHandler) Create(c *gin.Context) {
	var req dto.CreateLotRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid productId").WithDetail("productId", req.ProductID))
		return
	}

	created, err := h.ops.CreateLot(c.Request.Context(), lot.CreateLotInput{
		ProductID:       productID,
		InitialQuantity: types.NewQuantityFromFloat64(req.InitialQuantity),
		PurchasePrice:   types.NewMoney(req.PurchasePrice),
		ExpiryDate:      req.ExpiryDate,
		Reason:          req.Reason,
		Actor:           h.GetActorID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, created.ID.String())
}

// Get returns one lot with its derived status.
// GET /api/v1/lots/:id
func (h *LotsHandler) Get(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	l, err := h.ops.GetLotByID(c.Request.Context(), lotID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromLot(l, h.ops.StatusOf(l)))
}

// ListByProduct returns a product's lots, oldest first.
// GET /api/v1/products/:id/lots
func (h *LotsHandler) ListByProduct(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	includeEmpty := c.Query("includeEmpty") == "true"

	lots, err := h.ops.GetProductLots(c.Request.Context(), productID, includeEmpty)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]dto.LotResponse, 0, len(lots))
	for _, l := range lots {
		items = append(items, dto.FromLot(l, h.ops.StatusOf(l)))
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: int64(len(items)), Limit: len(items)})
}

// UpdateQuantity sets a lot's remaining quantity to an absolute value,
// recording the delta as an ADJUSTMENT movement.
// PUT /api/v1/lots/:id/quantity
func (h *LotsHandler) UpdateQuantity(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateQuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.ops.UpdateQuantity(
		c.Request.Context(),
		lotID,
		types.NewQuantityFromFloat64(req.NewRemaining),
		req.Reason,
		h.GetActorID(c),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromLot(l, h.ops.StatusOf(l)))
}

// Expiring returns non-empty lots inside the expiry warning window.
// GET /api/v1/lots/expiring
func (h *LotsHandler) Expiring(c *gin.Context) {
	lots, err := h.ops.ExpiringLots(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]dto.LotResponse, 0, len(lots))
	for _, l := range lots {
		items = append(items, dto.FromLot(l, h.ops.StatusOf(l)))
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: int64(len(items)), Limit: len(items)})
}

// Bulk applies one action to a set of lots, all-or-nothing.
// POST /api/v1/lots/bulk
func (h *LotsHandler) Bulk(c *gin.Context) {
	var req dto.BulkActionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lotIDs := make([]id.ID, 0, len(req.LotIDs))
	for _, s := range req.LotIDs {
		parsed, err := id.Parse(s)
		if err != nil {
			h.HandleError(c, apperror.NewValidation("invalid lot id").WithDetail("lotId", s))
			return
		}
		lotIDs = append(lotIDs, parsed)
	}

	result, err := h.ops.BulkAction(
		c.Request.Context(),
		lotIDs,
		lotops.BulkActionType(req.Action),
		lotops.BulkActionData{ExpiryDate: req.Data.ExpiryDate, Force: req.Data.Force},
		h.GetActorID(c),
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromBulkResult(result))
}

// History returns a lot's change audit trail, newest first.
// GET /api/v1/lots/:id/audit
func (h *LotsHandler) History(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 100)

	entries, err := h.auditor.History(c.Request.Context(), lotID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.FromAuditEntry(e))
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: int64(len(items)), Limit: limit})
}
