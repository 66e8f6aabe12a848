package dto

import (
	"time"

	"lotledger/internal/domain/ledger"
)

// --- Request DTOs ---

// RecordMovementRequest appends a movement to a lot's ledger.
type RecordMovementRequest struct {
	LotID         string  `json:"lotId" binding:"required,uuid"`
	Type          string  `json:"type" binding:"required,oneof=RECEIPT SALE RETURN ADJUSTMENT CORRECTION"`
	QuantityDelta float64 `json:"quantityDelta" binding:"required"`
	Reason        string  `json:"reason,omitempty"`

	// Override lets an ADJUSTMENT that would take the lot below zero
	// clamp the remaining quantity to zero instead of failing.
	Override bool `json:"override,omitempty"`
}

// --- Response DTOs ---

// MovementResponse represents a ledger entry in API responses.
type MovementResponse struct {
	ID                string    `json:"id"`
	LotID             string    `json:"lotId"`
	ProductID         string    `json:"productId"`
	Type              string    `json:"type"`
	QuantityDelta     float64   `json:"quantityDelta"`
	ResultingQuantity float64   `json:"resultingQuantity"`
	Reason            string    `json:"reason,omitempty"`
	Actor             string    `json:"actor,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// FromMovement converts a ledger entry to a response DTO.
func FromMovement(m *ledger.StockMovement) MovementResponse {
	return MovementResponse{
		ID:                m.ID.String(),
		LotID:             m.LotID.String(),
		ProductID:         m.ProductID.String(),
		Type:              string(m.Type),
		QuantityDelta:     m.QuantityDelta.Float64(),
		ResultingQuantity: m.ResultingQuantity.Float64(),
		Reason:            m.Reason,
		Actor:             m.Actor,
		OccurredAt:        m.OccurredAt,
	}
}

// VerifyResponse reports a ledger consistency check result.
type VerifyResponse struct {
	LotID      string `json:"lotId"`
	Consistent bool   `json:"consistent"`
}
