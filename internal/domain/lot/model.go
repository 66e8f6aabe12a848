// Package lot provides the stock lot store: per-batch quantities, derived
// status, and the invariants every mutation must hold.
package lot

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Status is derived from quantity and expiry on read; it is never stored,
// so it cannot drift from the underlying state.
type Status string

const (
	StatusAvailable    Status = "AVAILABLE"
	StatusSoldOut      Status = "SOLD_OUT"
	StatusExpired      Status = "EXPIRED"
	StatusExpiringSoon Status = "EXPIRING_SOON"
)

// DefaultExpiryHorizon is the EXPIRING_SOON window when none is configured.
const DefaultExpiryHorizon = 30 * 24 * time.Hour

// StockLot is a traceable batch of a product received at one time and price.
//
// Invariant: 0 <= RemainingQuantity <= InitialQuantity, always. A lot with
// RemainingQuantity == 0 is terminal for outbound movement but stays readable
// for audit. RemainingQuantity is written only by the movement ledger.
type StockLot struct {
	ID        id.ID `db:"id" json:"id"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// LotNumber is a human-readable label, sequential per product,
	// assigned at creation.
	LotNumber string `db:"lot_number" json:"lotNumber"`

	// InitialQuantity is the quantity received. Immutable after creation.
	InitialQuantity types.Quantity `db:"initial_quantity" json:"initialQuantity"`

	// RemainingQuantity is what is still on hand.
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`

	// PurchasePrice is the unit cost at receipt time. Immutable.
	PurchasePrice types.Money `db:"purchase_price" json:"purchasePrice"`

	// ExpiryDate is optional; nil means the lot does not expire.
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsSoldOut reports whether the lot has no remaining quantity.
func (l *StockLot) IsSoldOut() bool {
	return l.RemainingQuantity.IsZero()
}

// IsExpiredAt reports whether the lot's expiry date has passed at now.
func (l *StockLot) IsExpiredAt(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// StatusAt derives the lot status at the given instant with the given
// EXPIRING_SOON horizon. Precedence: SOLD_OUT > EXPIRED > EXPIRING_SOON > AVAILABLE.
func (l *StockLot) StatusAt(now time.Time, horizon time.Duration) Status {
	if l.IsSoldOut() {
		return StatusSoldOut
	}
	if l.IsExpiredAt(now) {
		return StatusExpired
	}
	if l.ExpiryDate != nil && !l.ExpiryDate.After(now.Add(horizon)) {
		return StatusExpiringSoon
	}
	return StatusAvailable
}

// Status derives the current status using the default horizon.
func (l *StockLot) Status() Status {
	return l.StatusAt(time.Now().UTC(), DefaultExpiryHorizon)
}

// TotalValue is remaining quantity times unit purchase price.
func (l *StockLot) TotalValue() types.Money {
	return l.RemainingQuantity.Decimal().Mul(l.PurchasePrice)
}

// Validate checks the lot invariants.
func (l *StockLot) Validate(ctx context.Context) error {
	if id.IsNil(l.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if !l.InitialQuantity.IsPositive() {
		return apperror.NewInvalidQuantity("initial quantity must be positive")
	}
	if l.PurchasePrice.IsNegative() {
		return apperror.NewInvalidPrice("purchase price must not be negative")
	}
	if l.RemainingQuantity.IsNegative() || l.RemainingQuantity > l.InitialQuantity {
		return apperror.NewInvalidQuantity("remaining quantity must be within [0, initial quantity]")
	}
	return nil
}
