// Package costing computes product valuation from lot state. All costing is
// read-time; it never mutates lots.
package costing

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

// Method selects how a product's unit cost is derived from its lots.
type Method string

const (
	// MethodWeightedAverage averages purchase price across all remaining
	// quantity, weighted by quantity.
	MethodWeightedAverage Method = "WEIGHTED_AVERAGE"

	// MethodFIFO prices at the oldest lot that still has quantity.
	MethodFIFO Method = "FIFO"
)

// IsValid reports whether m is a known costing method.
func (m Method) IsValid() bool {
	return m == MethodWeightedAverage || m == MethodFIFO
}

// DefaultMethod applies when a product has no stored settings.
const DefaultMethod = MethodWeightedAverage

// ValuationSettings holds a product's costing configuration.
type ValuationSettings struct {
	ProductID id.ID     `db:"product_id" json:"productId"`
	Method    Method    `db:"costing_method" json:"costingMethod"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks the settings fields.
func (s *ValuationSettings) Validate() error {
	if id.IsNil(s.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if !s.Method.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown costing method %q", s.Method))
	}
	return nil
}

// SettingsRepository persists per-product valuation settings.
type SettingsRepository interface {
	// Get returns the stored settings for a product, or nil if none exist.
	Get(ctx context.Context, productID id.ID) (*ValuationSettings, error)

	// Upsert stores or replaces a product's settings.
	Upsert(ctx context.Context, settings *ValuationSettings) error
}
