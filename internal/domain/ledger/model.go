// Package ledger provides the append-only stock movement ledger. It is the
// sole writer of lot remaining quantities: every quantity change commits in
// the same transaction as exactly one movement row.
package ledger

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// MovementType classifies a quantity change.
type MovementType string

const (
	TypeReceipt    MovementType = "RECEIPT"
	TypeSale       MovementType = "SALE"
	TypeReturn     MovementType = "RETURN"
	TypeAdjustment MovementType = "ADJUSTMENT"
	TypeCorrection MovementType = "CORRECTION"
)

// IsValid reports whether the movement type is known.
func (t MovementType) IsValid() bool {
	switch t {
	case TypeReceipt, TypeSale, TypeReturn, TypeAdjustment, TypeCorrection:
		return true
	default:
		return false
	}
}

// StockMovement is an immutable ledger entry recording one quantity change.
// Movements are never updated or deleted; corrections are new CORRECTION
// movements referencing the original via Reason.
type StockMovement struct {
	ID id.ID `db:"id" json:"id"`

	LotID id.ID `db:"lot_id" json:"lotId"`

	// ProductID is denormalized for fast per-product history queries.
	ProductID id.ID `db:"product_id" json:"productId"`

	Type MovementType `db:"movement_type" json:"movementType"`

	// QuantityDelta is signed; negative for outbound.
	QuantityDelta types.Quantity `db:"quantity_delta" json:"quantityDelta"`

	// ResultingQuantity is the lot's remaining quantity immediately after
	// this movement, enabling point-in-time audit without replay.
	ResultingQuantity types.Quantity `db:"resulting_quantity" json:"resultingQuantity"`

	// Reason is free text, required for ADJUSTMENT.
	Reason string `db:"reason" json:"reason,omitempty"`

	// Actor references the user who triggered the movement (external identity).
	Actor string `db:"actor" json:"actor,omitempty"`

	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}
