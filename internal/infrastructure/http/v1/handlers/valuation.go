package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// ValuationHandler handles inventory valuation endpoints.
type ValuationHandler struct {
	*BaseHandler
	ops *lotops.Facade
}

// NewValuationHandler creates a new valuation handler.
func NewValuationHandler(base *BaseHandler, ops *lotops.Facade) *ValuationHandler {
	return &ValuationHandler{BaseHandler: base, ops: ops}
}

// GetSettings returns a product's costing configuration. Products without
// stored settings report the default method.
// GET /api/v1/products/:id/valuation/settings
func (h *ValuationHandler) GetSettings(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	settings, err := h.ops.GetValuationSettings(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromValuationSettings(settings))
}

// SetSettings changes a product's costing method.
// PUT /api/v1/products/:id/valuation/settings
func (h *ValuationHandler) SetSettings(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.SetValuationSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	settings, err := h.ops.SetValuationSettings(c.Request.Context(), productID, costing.Method(req.Method))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromValuationSettings(settings))
}

// AverageCost returns a product's unit cost under its configured method.
// GET /api/v1/products/:id/valuation/cost
func (h *ValuationHandler) AverageCost(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	cost, err := h.ops.CalculateAverageCost(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.AverageCostResponse{
		ProductID: productID.String(),
		UnitCost:  cost.StringFixed(4),
	})
}

// Valuation returns the full valuation snapshot for a product.
// GET /api/v1/products/:id/valuation
func (h *ValuationHandler) Valuation(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	v, err := h.ops.Valuation(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.FromValuation(v))
}
