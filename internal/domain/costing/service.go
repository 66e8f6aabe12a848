package costing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
	"lotledger/pkg/logger"
)

// Service answers valuation queries over current lot state.
type Service struct {
	lots     lot.Repository
	settings SettingsRepository
	txm      tx.ReadOnlyManager

	// defaultMethod applies when a product has no stored settings.
	defaultMethod Method
}

// NewService creates a costing service. An invalid defaultMethod falls back
// to WEIGHTED_AVERAGE.
func NewService(lots lot.Repository, settings SettingsRepository, txm tx.ReadOnlyManager, defaultMethod Method) *Service {
	if !defaultMethod.IsValid() {
		defaultMethod = DefaultMethod
	}
	return &Service{
		lots:          lots,
		settings:      settings,
		txm:           txm,
		defaultMethod: defaultMethod,
	}
}

// GetValuationSettings returns a product's settings, falling back to the
// default method when none are stored.
func (s *Service) GetValuationSettings(ctx context.Context, productID id.ID) (*ValuationSettings, error) {
	if id.IsNil(productID) {
		return nil, apperror.NewValidation("product_id is required")
	}
	stored, err := s.settings.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	return &ValuationSettings{
		ProductID: productID,
		Method:    s.defaultMethod,
	}, nil
}

// SetValuationSettings stores a product's costing method.
func (s *Service) SetValuationSettings(ctx context.Context, productID id.ID, method Method) (*ValuationSettings, error) {
	settings := &ValuationSettings{
		ProductID: productID,
		Method:    method,
		UpdatedAt: time.Now().UTC(),
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	logger.Info(ctx, "valuation settings updated", "product_id", productID, "method", method)
	return settings, nil
}

// CalculateAverageCost computes the product's unit cost under its configured
// costing method. A product with no remaining quantity costs zero; that is a
// defined edge case, not an error.
func (s *Service) CalculateAverageCost(ctx context.Context, productID id.ID) (types.Money, error) {
	settings, err := s.GetValuationSettings(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.CalculateCostWith(ctx, productID, settings.Method)
}

// CalculateCostWith computes the unit cost under an explicit method. The
// read runs in a read-only transaction so it cannot observe a half-applied
// multi-lot write.
func (s *Service) CalculateCostWith(ctx context.Context, productID id.ID, method Method) (types.Money, error) {
	if !method.IsValid() {
		return decimal.Zero, apperror.NewValidation("unknown costing method")
	}

	var cost types.Money
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListByProduct(ctx, productID, false)
		if err != nil {
			return err
		}
		switch method {
		case MethodFIFO:
			cost = fifoCost(lots)
		default:
			cost = weightedAverageCost(lots)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// ProductValuation is an on-demand valuation snapshot for one product.
type ProductValuation struct {
	ProductID     id.ID          `json:"productId"`
	Method        Method         `json:"costingMethod"`
	UnitCost      types.Money    `json:"unitCost"`
	TotalQuantity types.Quantity `json:"totalQuantity"`
	TotalValue    types.Money    `json:"totalValue"`
	LotCount      int            `json:"lotCount"`
}

// Valuation returns the full valuation summary for a product. Quantity,
// value and cost come from one read-only transaction, so they agree.
func (s *Service) Valuation(ctx context.Context, productID id.ID) (*ProductValuation, error) {
	settings, err := s.GetValuationSettings(ctx, productID)
	if err != nil {
		return nil, err
	}

	v := &ProductValuation{
		ProductID: productID,
		Method:    settings.Method,
		UnitCost:  decimal.Zero,
	}
	err = s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		lots, err := s.lots.ListByProduct(ctx, productID, false)
		if err != nil {
			return err
		}
		v.LotCount = len(lots)

		total := decimal.Zero
		for _, l := range lots {
			v.TotalQuantity += l.RemainingQuantity
			total = total.Add(l.TotalValue())
		}
		v.TotalValue = total

		if settings.Method == MethodFIFO {
			v.UnitCost = fifoCost(lots)
		} else {
			v.UnitCost = weightedAverageCost(lots)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// weightedAverageCost is sum(remaining * price) / sum(remaining) over lots
// that still have quantity. Zero when nothing remains.
func weightedAverageCost(lots []*lot.StockLot) types.Money {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, l := range lots {
		if l.RemainingQuantity.IsZero() {
			continue
		}
		q := l.RemainingQuantity.Decimal()
		totalQty = totalQty.Add(q)
		totalValue = totalValue.Add(q.Mul(l.PurchasePrice))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalQty)
}

// fifoCost is the purchase price of the oldest lot with remaining quantity,
// ordered by created_at with lot_number as the tiebreaker. Zero when nothing
// remains.
func fifoCost(lots []*lot.StockLot) types.Money {
	candidates := make([]*lot.StockLot, 0, len(lots))
	for _, l := range lots {
		if l.RemainingQuantity.IsPositive() {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return decimal.Zero
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].LotNumber < candidates[j].LotNumber
	})
	return candidates[0].PurchasePrice
}
