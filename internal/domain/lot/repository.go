package lot

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines storage operations for stock lots.
//
// SetRemaining exists for the ledger alone: every quantity write happens in
// the same transaction as the movement append, so no other caller may use it.
type Repository interface {
	// Create inserts a new lot.
	Create(ctx context.Context, l *StockLot) error

	// GetByID retrieves a lot or NotFound.
	GetByID(ctx context.Context, lotID id.ID) (*StockLot, error)

	// GetByIDForUpdate retrieves a lot with a row lock.
	// Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, lotID id.ID) (*StockLot, error)

	// ListByProduct returns a product's lots ordered by creation
	// (oldest first, lot number as tie-break). Sold-out lots are
	// excluded unless includeEmpty.
	ListByProduct(ctx context.Context, productID id.ID, includeEmpty bool) ([]*StockLot, error)

	// ListByIDs returns the given lots. Missing IDs are simply absent
	// from the result; callers compare lengths.
	ListByIDs(ctx context.Context, lotIDs []id.ID) ([]*StockLot, error)

	// ListByIDsForUpdate locks and returns the given lots, ordered by ID
	// so concurrent batches acquire locks in a consistent order.
	// Must be called inside a transaction.
	ListByIDsForUpdate(ctx context.Context, lotIDs []id.ID) ([]*StockLot, error)

	// ListExpiring returns lots with remaining quantity whose expiry date
	// is on or before the deadline.
	ListExpiring(ctx context.Context, deadline time.Time) ([]*StockLot, error)

	// SetRemaining updates remaining_quantity. Ledger use only.
	SetRemaining(ctx context.Context, lotID id.ID, remaining types.Quantity) error

	// SetExpiry updates the expiry date (nil clears it).
	SetExpiry(ctx context.Context, lotID id.ID, expiry *time.Time) error

	// Delete physically removes a lot. Only the bulk delete path may call
	// this, after the removal has been logged as a movement.
	Delete(ctx context.Context, lotID id.ID) error

	// SumRemaining returns the sum of remaining quantities over a
	// product's lots.
	SumRemaining(ctx context.Context, productID id.ID) (types.Quantity, error)

	// CountByProduct returns the number of lots a product has,
	// including sold-out ones.
	CountByProduct(ctx context.Context, productID id.ID) (int64, error)
}
