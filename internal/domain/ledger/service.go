package ledger

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
	"lotledger/pkg/logger"
)

// Service records movements and, with them, the only writes to lot
// remaining quantities. Each mutating call runs one transaction that locks
// the lot row, validates the invariant, appends the movement and commits the
// quantity change, so two concurrent sales against the same lot cannot both
// succeed past the available quantity.
type Service struct {
	movements Repository
	lots      lot.Repository
	txm       tx.Manager
}

// NewService creates a ledger service.
func NewService(movements Repository, lots lot.Repository, txm tx.Manager) *Service {
	return &Service{
		movements: movements,
		lots:      lots,
		txm:       txm,
	}
}

// RecordInput describes a movement to append.
type RecordInput struct {
	LotID id.ID
	Type  MovementType

	// QuantityDelta is signed; negative for outbound.
	QuantityDelta types.Quantity

	// Reason is free text; required for ADJUSTMENT.
	Reason string
	Actor  string

	// Override lets an ADJUSTMENT that overshoots the remaining quantity
	// clamp at zero instead of failing with InsufficientStock. The
	// recorded delta is the applied delta, so replay stays exact.
	Override bool
}

func (in RecordInput) validate() error {
	if id.IsNil(in.LotID) {
		return apperror.NewValidation("lot_id is required")
	}
	if !in.Type.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.QuantityDelta.IsZero() {
		return apperror.NewInvalidQuantity("quantity delta must not be zero")
	}
	switch in.Type {
	case TypeReceipt, TypeReturn:
		if in.QuantityDelta.IsNegative() {
			return apperror.NewInvalidQuantity(fmt.Sprintf("%s delta must be positive", in.Type))
		}
	case TypeSale:
		if in.QuantityDelta.IsPositive() {
			return apperror.NewInvalidQuantity("SALE delta must be negative")
		}
	case TypeAdjustment:
		if in.Reason == "" {
			return apperror.NewValidation("reason is required for adjustments")
		}
	}
	return nil
}

// Record appends a movement and commits the lot's new remaining quantity
// atomically. Fails with InsufficientStock if the delta would drive the
// remaining quantity below zero (unless an overriding ADJUSTMENT), and with
// InvalidQuantity if it would exceed the initial quantity.
func (s *Service) Record(ctx context.Context, in RecordInput) (*StockMovement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var movement *StockMovement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		l, err := s.lots.GetByIDForUpdate(ctx, in.LotID)
		if err != nil {
			return err
		}

		delta := in.QuantityDelta
		resulting := l.RemainingQuantity + delta

		if resulting.IsNegative() {
			if in.Type == TypeAdjustment && in.Override {
				delta = l.RemainingQuantity.Neg()
				resulting = 0
			} else {
				return apperror.NewInsufficientStock(
					l.ID.String(),
					delta.Abs().Float64(),
					l.RemainingQuantity.Float64(),
				)
			}
		}
		if resulting > l.InitialQuantity {
			return apperror.NewInvalidQuantity("movement would exceed the lot's initial quantity").
				WithDetail("lot_id", l.ID.String()).
				WithDetail("initial", l.InitialQuantity.Float64())
		}

		movement = s.newMovement(l, in.Type, delta, resulting, in.Reason, in.Actor)
		if err := s.movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		if err := s.lots.SetRemaining(ctx, l.ID, resulting); err != nil {
			return fmt.Errorf("update remaining quantity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement recorded",
		"movement_id", movement.ID,
		"lot_id", movement.LotID,
		"type", movement.Type,
		"delta", movement.QuantityDelta,
		"resulting", movement.ResultingQuantity,
	)

	return movement, nil
}

// AdjustTo brings a lot's remaining quantity to an absolute target value via
// an ADJUSTMENT movement. The delta is derived under the row lock, so
// concurrent movements cannot slip in between read and write.
func (s *Service) AdjustTo(ctx context.Context, lotID id.ID, newRemaining types.Quantity, reason, actor string) (*lot.StockLot, error) {
	if reason == "" {
		return nil, apperror.NewValidation("reason is required for adjustments")
	}

	var adjusted *lot.StockLot
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		l, err := s.lots.GetByIDForUpdate(ctx, lotID)
		if err != nil {
			return err
		}

		if newRemaining.IsNegative() || newRemaining > l.InitialQuantity {
			return apperror.NewInvalidQuantity("remaining quantity must be within [0, initial quantity]").
				WithDetail("lot_id", l.ID.String()).
				WithDetail("initial", l.InitialQuantity.Float64()).
				WithDetail("requested", newRemaining.Float64())
		}

		delta := newRemaining - l.RemainingQuantity
		if delta.IsZero() {
			// Nothing to change; no movement is appended.
			adjusted = l
			return nil
		}

		movement := s.newMovement(l, TypeAdjustment, delta, newRemaining, reason, actor)
		if err := s.movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		if err := s.lots.SetRemaining(ctx, l.ID, newRemaining); err != nil {
			return fmt.Errorf("update remaining quantity: %w", err)
		}

		l.RemainingQuantity = newRemaining
		adjusted = l

		logger.Info(ctx, "lot quantity adjusted",
			"lot_id", l.ID,
			"delta", delta,
			"resulting", newRemaining,
			"reason", reason,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

// AppendReceipt records the opening RECEIPT movement for a freshly created
// lot. It runs inside the caller's transaction; the lot row was just
// inserted with remaining == initial, so no lock or quantity write is needed.
func (s *Service) AppendReceipt(ctx context.Context, l *lot.StockLot, reason, actor string) error {
	movement := s.newMovement(l, TypeReceipt, l.InitialQuantity, l.InitialQuantity, reason, actor)
	if err := s.movements.Create(ctx, movement); err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}
	return nil
}

// GetMovements returns a product's movements newest first.
// limit <= 0 means unbounded.
func (s *Service) GetMovements(ctx context.Context, productID id.ID, limit, offset int) ([]*StockMovement, error) {
	return s.movements.ListByProduct(ctx, productID, limit, offset)
}

// CountMovements returns the total number of movements for a product.
func (s *Service) CountMovements(ctx context.Context, productID id.ID) (int64, error) {
	return s.movements.CountByProduct(ctx, productID)
}

// VerifyLot replays a lot's movements from zero and checks that the
// resulting-quantity chain is consistent and ends at the lot's current
// remaining quantity.
func (s *Service) VerifyLot(ctx context.Context, lotID id.ID) error {
	l, err := s.lots.GetByID(ctx, lotID)
	if err != nil {
		return err
	}
	movements, err := s.movements.ListByLot(ctx, lotID)
	if err != nil {
		return err
	}

	var running types.Quantity
	for _, m := range movements {
		running += m.QuantityDelta
		if m.ResultingQuantity != running {
			return apperror.NewConflict("movement chain is inconsistent").
				WithDetail("lot_id", lotID.String()).
				WithDetail("movement_id", m.ID.String()).
				WithDetail("expected", running.Float64()).
				WithDetail("recorded", m.ResultingQuantity.Float64())
		}
	}
	if running != l.RemainingQuantity {
		return apperror.NewConflict("replayed quantity does not match lot").
			WithDetail("lot_id", lotID.String()).
			WithDetail("replayed", running.Float64()).
			WithDetail("remaining", l.RemainingQuantity.Float64())
	}
	return nil
}

func (s *Service) newMovement(l *lot.StockLot, t MovementType, delta, resulting types.Quantity, reason, actor string) *StockMovement {
	return &StockMovement{
		ID:                id.New(),
		LotID:             l.ID,
		ProductID:         l.ProductID,
		Type:              t,
		QuantityDelta:     delta,
		ResultingQuantity: resulting,
		Reason:            reason,
		Actor:             actor,
		OccurredAt:        time.Now().UTC(),
	}
}

// Ensure the ledger satisfies the lot store's writer contract.
var _ lot.MovementWriter = (*Service)(nil)
