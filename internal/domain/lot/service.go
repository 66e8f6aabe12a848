package lot

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/pkg/logger"
)

// MovementWriter appends ledger entries for lot quantity changes.
// Implemented by the ledger service; the lot store never writes
// remaining_quantity itself.
type MovementWriter interface {
	// AppendReceipt records the opening RECEIPT movement for a newly
	// created lot. Runs in the caller's transaction.
	AppendReceipt(ctx context.Context, l *StockLot, reason, actor string) error

	// AdjustTo records an ADJUSTMENT movement that brings the lot's
	// remaining quantity to newRemaining, atomically with the quantity
	// write. Returns the updated lot.
	AdjustTo(ctx context.Context, lotID id.ID, newRemaining types.Quantity, reason, actor string) (*StockLot, error)
}

// NumberGenerator assigns sequential lot numbers scoped to a product.
type NumberGenerator interface {
	NextLotNumber(ctx context.Context, productID id.ID) (string, error)
}

// Store provides business operations on stock lots.
type Store struct {
	repo      Repository
	movements MovementWriter
	numbers   NumberGenerator
	txm       tx.Manager
	horizon   time.Duration
}

// NewStore creates a lot store. A non-positive horizon falls back to the
// 30-day default.
func NewStore(repo Repository, movements MovementWriter, numbers NumberGenerator, txm tx.Manager, horizon time.Duration) *Store {
	if horizon <= 0 {
		horizon = DefaultExpiryHorizon
	}
	return &Store{
		repo:      repo,
		movements: movements,
		numbers:   numbers,
		txm:       txm,
		horizon:   horizon,
	}
}

// Horizon returns the configured EXPIRING_SOON window.
func (s *Store) Horizon() time.Duration {
	return s.horizon
}

// CreateLotInput carries the fields needed to open a new lot.
type CreateLotInput struct {
	ProductID       id.ID
	InitialQuantity types.Quantity
	PurchasePrice   types.Money
	ExpiryDate      *time.Time

	// Reason is recorded on the opening RECEIPT movement ("receipt" when empty).
	Reason string
	Actor  string
}

// CreateLot creates a lot and records its opening RECEIPT movement in one
// transaction.
func (s *Store) CreateLot(ctx context.Context, in CreateLotInput) (*StockLot, error) {
	if id.IsNil(in.ProductID) {
		return nil, apperror.NewValidation("product_id is required")
	}
	if !in.InitialQuantity.IsPositive() {
		return nil, apperror.NewInvalidQuantity("initial quantity must be positive")
	}
	if in.PurchasePrice.IsNegative() {
		return nil, apperror.NewInvalidPrice("purchase price must not be negative")
	}

	// Lot numbers are allocated outside the transaction; a rollback may
	// leave a gap, never a duplicate.
	number, err := s.numbers.NextLotNumber(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("generate lot number: %w", err)
	}

	reason := in.Reason
	if reason == "" {
		reason = "receipt"
	}

	l := &StockLot{
		ID:                id.New(),
		ProductID:         in.ProductID,
		LotNumber:         number,
		InitialQuantity:   in.InitialQuantity,
		RemainingQuantity: in.InitialQuantity,
		PurchasePrice:     in.PurchasePrice,
		ExpiryDate:        in.ExpiryDate,
		CreatedAt:         time.Now().UTC(),
	}

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, l); err != nil {
			return fmt.Errorf("create lot: %w", err)
		}
		if err := s.movements.AppendReceipt(ctx, l, reason, in.Actor); err != nil {
			return fmt.Errorf("append receipt movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "lot created",
		"lot_id", l.ID,
		"product_id", l.ProductID,
		"lot_number", l.LotNumber,
		"quantity", l.InitialQuantity,
	)

	return l, nil
}

// GetLotByID retrieves a single lot.
func (s *Store) GetLotByID(ctx context.Context, lotID id.ID) (*StockLot, error) {
	return s.repo.GetByID(ctx, lotID)
}

// GetLotsForProduct returns a product's lots, excluding sold-out lots
// unless includeEmpty.
func (s *Store) GetLotsForProduct(ctx context.Context, productID id.ID, includeEmpty bool) ([]*StockLot, error) {
	return s.repo.ListByProduct(ctx, productID, includeEmpty)
}

// AdjustQuantity sets a lot's remaining quantity to a new absolute value.
// The delta is derived and validated against [0, initial] inside the ledger
// transaction; the quantity write and the ADJUSTMENT movement commit together.
func (s *Store) AdjustQuantity(ctx context.Context, lotID id.ID, newRemaining types.Quantity, reason, actor string) (*StockLot, error) {
	if reason == "" {
		return nil, apperror.NewValidation("reason is required for adjustments")
	}
	if newRemaining.IsNegative() {
		return nil, apperror.NewInvalidQuantity("remaining quantity must not be negative")
	}
	return s.movements.AdjustTo(ctx, lotID, newRemaining, reason, actor)
}

// ExpiringLots returns lots with stock on hand that are expired or expire
// within the configured horizon.
func (s *Store) ExpiringLots(ctx context.Context) ([]*StockLot, error) {
	deadline := time.Now().UTC().Add(s.horizon)
	return s.repo.ListExpiring(ctx, deadline)
}

// StatusOf derives a lot's status using the store's horizon.
func (s *Store) StatusOf(l *StockLot) Status {
	return l.StatusAt(time.Now().UTC(), s.horizon)
}
