package dto

import (
	"time"

	"lotledger/internal/domain/costing"
)

// SetValuationSettingsRequest changes a product's costing method.
type SetValuationSettingsRequest struct {
	Method string `json:"method" binding:"required,oneof=WEIGHTED_AVERAGE FIFO"`
}

// ValuationSettingsResponse represents costing configuration.
type ValuationSettingsResponse struct {
	ProductID string    `json:"productId"`
	Method    string    `json:"method"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromValuationSettings converts settings to a response DTO.
func FromValuationSettings(s *costing.ValuationSettings) ValuationSettingsResponse {
	return ValuationSettingsResponse{
		ProductID: s.ProductID.String(),
		Method:    string(s.Method),
		UpdatedAt: s.UpdatedAt,
	}
}

// AverageCostResponse is a product's unit cost under its configured method.
type AverageCostResponse struct {
	ProductID string `json:"productId"`
	UnitCost  string `json:"unitCost"`
}

// ValuationResponse is a full valuation snapshot for one product.
type ValuationResponse struct {
	ProductID     string  `json:"productId"`
	Method        string  `json:"method"`
	UnitCost      string  `json:"unitCost"`
	TotalQuantity float64 `json:"totalQuantity"`
	TotalValue    string  `json:"totalValue"`
	LotCount      int     `json:"lotCount"`
}

// FromValuation converts a valuation snapshot to a response DTO.
func FromValuation(v *costing.ProductValuation) ValuationResponse {
	return ValuationResponse{
		ProductID:     v.ProductID.String(),
		Method:        string(v.Method),
		UnitCost:      v.UnitCost.StringFixed(4),
		TotalQuantity: v.TotalQuantity.Float64(),
		TotalValue:    v.TotalValue.StringFixed(2),
		LotCount:      v.LotCount,
	}
}
