// Package product defines the engine's view of the external product registry.
// The registry owns product identity, naming and pricing; this engine reads
// those fields and writes exactly one field, the aggregate stock figure,
// through the reconciliation service.
package product

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Product is the read model of a catalog product.
type Product struct {
	ID   id.ID  `db:"id" json:"id"`
	SKU  string `db:"sku" json:"sku"`
	Name string `db:"name" json:"name"`

	// Stock is the derived aggregate maintained by reconciliation.
	// Treated as a read-through cache over the lot store, never as the
	// source of truth.
	Stock types.Quantity `db:"stock" json:"stock"`

	// PurchasePrice is the product-level default cost, used when migrating
	// legacy flat-stock products into lots.
	PurchasePrice types.Money `db:"purchase_price" json:"purchasePrice"`

	RetailPrice types.Money `db:"retail_price" json:"retailPrice"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// Gateway is the boundary to the external product registry.
type Gateway interface {
	// GetByID retrieves a product or NotFound.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// Exists checks product existence without loading it.
	Exists(ctx context.Context, productID id.ID) (bool, error)

	// ListIDs returns the IDs of all non-deleted products,
	// used by reconciliation sweeps.
	ListIDs(ctx context.Context) ([]id.ID, error)

	// UpdateStock writes the aggregate stock figure.
	// Only the reconciliation service may call this.
	UpdateStock(ctx context.Context, productID id.ID, stock types.Quantity) error
}
