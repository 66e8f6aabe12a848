package dto

import (
	"encoding/json"
	"time"

	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/lotops"
	"lotledger/internal/infrastructure/storage/postgres"
)

// --- Request DTOs ---

// CreateLotRequest creates a new stock lot for a product.
type CreateLotRequest struct {
	ProductID       string     `json:"productId" binding:"required,uuid"`
	InitialQuantity float64    `json:"initialQuantity" binding:"required,gt=0"`
	PurchasePrice   float64    `json:"purchasePrice" binding:"min=0"`
	ExpiryDate      *time.Time `json:"expiryDate,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// UpdateQuantityRequest sets a lot's remaining quantity to an absolute value.
type UpdateQuantityRequest struct {
	NewRemaining float64 `json:"newRemaining" binding:"min=0"`
	Reason       string  `json:"reason" binding:"required"`
}

// BulkActionRequest applies one action to a set of lots.
type BulkActionRequest struct {
	LotIDs []string       `json:"lotIds" binding:"required,min=1,dive,uuid"`
	Action string         `json:"action" binding:"required,oneof=delete update_expiry export"`
	Data   BulkActionData `json:"data"`
}

// BulkActionData carries action-specific parameters.
type BulkActionData struct {
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	Force      bool       `json:"force,omitempty"`
}

// --- Response DTOs ---

// LotResponse represents a stock lot in API responses.
type LotResponse struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"productId"`
	LotNumber         string     `json:"lotNumber"`
	InitialQuantity   float64    `json:"initialQuantity"`
	RemainingQuantity float64    `json:"remainingQuantity"`
	PurchasePrice     string     `json:"purchasePrice"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	Status            string     `json:"status"`
	TotalValue        string     `json:"totalValue"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// FromLot converts a lot to a response DTO. Status is derived at read time.
func FromLot(l *lot.StockLot, status lot.Status) LotResponse {
	return LotResponse{
		ID:                l.ID.String(),
		ProductID:         l.ProductID.String(),
		LotNumber:         l.LotNumber,
		InitialQuantity:   l.InitialQuantity.Float64(),
		RemainingQuantity: l.RemainingQuantity.Float64(),
		PurchasePrice:     l.PurchasePrice.StringFixed(2),
		ExpiryDate:        l.ExpiryDate,
		Status:            string(status),
		TotalValue:        l.TotalValue().StringFixed(2),
		CreatedAt:         l.CreatedAt,
	}
}

// ExportRowResponse is one exported lot snapshot.
type ExportRowResponse struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"productId"`
	LotNumber         string     `json:"lotNumber"`
	InitialQuantity   float64    `json:"initialQuantity"`
	RemainingQuantity float64    `json:"remainingQuantity"`
	PurchasePrice     string     `json:"purchasePrice"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	Status            string     `json:"status"`
	TotalValue        string     `json:"totalValue"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// BulkResultResponse reports a batch outcome.
type BulkResultResponse struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Affected int                 `json:"affected"`
	Export   []ExportRowResponse `json:"export,omitempty"`
}

// FromBulkResult converts a bulk outcome to a response DTO.
func FromBulkResult(r *lotops.BulkResult) BulkResultResponse {
	resp := BulkResultResponse{
		Success:  r.Success,
		Message:  r.Message,
		Affected: r.Affected,
	}
	for _, row := range r.Export {
		resp.Export = append(resp.Export, ExportRowResponse{
			ID:                row.ID.String(),
			ProductID:         row.ProductID.String(),
			LotNumber:         row.LotNumber,
			InitialQuantity:   row.InitialQuantity.Float64(),
			RemainingQuantity: row.RemainingQuantity.Float64(),
			PurchasePrice:     row.PurchasePrice.StringFixed(2),
			ExpiryDate:        row.ExpiryDate,
			Status:            string(row.Status),
			TotalValue:        row.TotalValue.StringFixed(2),
			CreatedAt:         row.CreatedAt,
		})
	}
	return resp
}

// AuditEntryResponse is one entry of a lot's change history.
type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromAuditEntry converts a stored audit entry to a response DTO.
// Payload is raw JSON already, so it passes through unmodified.
func FromAuditEntry(e postgres.AuditEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:        e.ID.String(),
		Action:    e.Action,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt,
	}
	if len(e.Payload) > 0 {
		resp.Payload = json.RawMessage(e.Payload)
	}
	return resp
}
