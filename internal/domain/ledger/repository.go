package ledger

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines storage operations for the movement ledger.
// The table is strictly append-only: no update or delete operations exist.
type Repository interface {
	// Create appends a movement.
	Create(ctx context.Context, m *StockMovement) error

	// ListByProduct returns a product's movements newest first.
	// limit <= 0 means unbounded; callers should page.
	ListByProduct(ctx context.Context, productID id.ID, limit, offset int) ([]*StockMovement, error)

	// ListByLot returns a lot's movements oldest first, the order needed
	// to replay the resulting-quantity chain.
	ListByLot(ctx context.Context, lotID id.ID) ([]*StockMovement, error)

	// CountByProduct returns the total number of movements for a product.
	CountByProduct(ctx context.Context, productID id.ID) (int64, error)
}
