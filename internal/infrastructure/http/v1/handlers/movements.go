package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// MovementsHandler handles stock movement ledger endpoints.
type MovementsHandler struct {
	*BaseHandler
	ops *lotops.Facade
}

// NewMovementsHandler creates a new movements handler.
func NewMovementsHandler(base *BaseHandler, ops *lotops.Facade) *MovementsHandler {
	return &MovementsHandler{BaseHandler: base, ops: ops}
}

// Record appends a movement to a lot's ledger and applies the quantity
// change in the same transaction.
// POST /api/v1/movements
func (h *MovementsHandler) Record(c *gin.Context) {
	var req dto.RecordMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lotID, err := id.Parse(req.LotID)
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid lotId").WithDetail("lotId", req.LotID))
		return
	}

	m, err := h.ops.RecordMovement(c.Request.Context(), ledger.RecordInput{
		LotID:         lotID,
		Type:          ledger.MovementType(req.Type),
		QuantityDelta: types.NewQuantityFromFloat64(req.QuantityDelta),
		Reason:        req.Reason,
		Actor:         h.GetActorID(c),
		Override:      req.Override,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromMovement(m))
}

// ListByProduct returns a product's movement history, newest first.
// GET /api/v1/products/:id/movements
func (h *MovementsHandler) ListByProduct(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var paging dto.PagingRequest
	if !h.BindQuery(c, &paging) {
		return
	}
	paging.Defaults()

	ctx := c.Request.Context()
	movements, err := h.ops.GetMovements(ctx, productID, paging.Limit, paging.Offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	total, err := h.ops.CountMovements(ctx, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]dto.MovementResponse, 0, len(movements))
	for _, m := range movements {
		items = append(items, dto.FromMovement(m))
	}
	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      paging.Limit,
		Offset:     paging.Offset,
	})
}

// Verify replays a lot's ledger and checks it reproduces the stored
// remaining quantity.
// GET /api/v1/lots/:id/verify
func (h *MovementsHandler) Verify(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.ops.VerifyLot(c.Request.Context(), lotID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.VerifyResponse{LotID: lotID.String(), Consistent: true})
}
