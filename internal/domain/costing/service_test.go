package costing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubLotRepo serves ListByProduct from a fixed slice; costing never calls
// anything else.
type stubLotRepo struct {
	lot.Repository
	lots []*lot.StockLot
}

func (r *stubLotRepo) ListByProduct(_ context.Context, productID id.ID, includeEmpty bool) ([]*lot.StockLot, error) {
	var out []*lot.StockLot
	for _, l := range r.lots {
		if l.ProductID != productID {
			continue
		}
		if !includeEmpty && l.RemainingQuantity.IsZero() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type fakeSettingsRepo struct {
	byProduct map[id.ID]*ValuationSettings
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{byProduct: make(map[id.ID]*ValuationSettings)}
}

func (r *fakeSettingsRepo) Get(_ context.Context, productID id.ID) (*ValuationSettings, error) {
	s, ok := r.byProduct[productID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettingsRepo) Upsert(_ context.Context, s *ValuationSettings) error {
	cp := *s
	r.byProduct[s.ProductID] = &cp
	return nil
}

func testLot(productID id.ID, number string, qty float64, price string, createdAt time.Time) *lot.StockLot {
	return &lot.StockLot{
		ID:                id.New(),
		ProductID:         productID,
		LotNumber:         number,
		InitialQuantity:   types.NewQuantityFromFloat64(qty),
		RemainingQuantity: types.NewQuantityFromFloat64(qty),
		PurchasePrice:     types.MustMoney(price),
		CreatedAt:         createdAt,
	}
}

func newTestService(lots []*lot.StockLot) (*Service, *fakeSettingsRepo) {
	settings := newFakeSettingsRepo()
	svc := NewService(&stubLotRepo{lots: lots}, settings, fakeTxManager{}, DefaultMethod)
	return svc, settings
}

func TestCalculateAverageCost_WeightedAverage(t *testing.T) {
	productID := id.New()
	base := time.Now().UTC()
	svc, _ := newTestService([]*lot.StockLot{
		testLot(productID, "LOT-00001", 10, "5.00", base),
		testLot(productID, "LOT-00002", 5, "8.00", base.Add(time.Hour)),
	})

	// (10*5.00 + 5*8.00) / 15 = 6.00
	cost, err := svc.CalculateAverageCost(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, cost.Equal(types.MustMoney("6.00")), "got %s", cost)
}

func TestCalculateAverageCost_FIFO(t *testing.T) {
	productID := id.New()
	base := time.Now().UTC()
	svc, settings := newTestService([]*lot.StockLot{
		testLot(productID, "LOT-00001", 10, "5.00", base),
		testLot(productID, "LOT-00002", 5, "8.00", base.Add(time.Hour)),
	})

	_, err := svc.SetValuationSettings(context.Background(), productID, MethodFIFO)
	require.NoError(t, err)
	require.Len(t, settings.byProduct, 1)

	cost, err := svc.CalculateAverageCost(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, cost.Equal(types.MustMoney("5.00")), "got %s", cost)
}

func TestCalculateCostWith_FIFOSkipsEmptyAndBreaksTies(t *testing.T) {
	productID := id.New()
	base := time.Now().UTC()

	oldest := testLot(productID, "LOT-00001", 10, "5.00", base)
	oldest.RemainingQuantity = 0

	// Same created_at; lot number decides.
	a := testLot(productID, "LOT-00003", 5, "9.00", base.Add(time.Hour))
	b := testLot(productID, "LOT-00002", 5, "7.00", base.Add(time.Hour))

	svc, _ := newTestService([]*lot.StockLot{oldest, a, b})

	cost, err := svc.CalculateCostWith(context.Background(), productID, MethodFIFO)
	require.NoError(t, err)
	assert.True(t, cost.Equal(types.MustMoney("7.00")), "got %s", cost)
}

func TestCalculateAverageCost_NoRemainingQuantity(t *testing.T) {
	productID := id.New()
	empty := testLot(productID, "LOT-00001", 10, "5.00", time.Now().UTC())
	empty.RemainingQuantity = 0
	svc, _ := newTestService([]*lot.StockLot{empty})

	cost, err := svc.CalculateAverageCost(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, cost.IsZero())

	cost, err = svc.CalculateCostWith(context.Background(), productID, MethodFIFO)
	require.NoError(t, err)
	assert.True(t, cost.IsZero())
}

func TestGetValuationSettings_Default(t *testing.T) {
	productID := id.New()
	svc, _ := newTestService(nil)

	settings, err := svc.GetValuationSettings(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, MethodWeightedAverage, settings.Method)
	assert.Equal(t, productID, settings.ProductID)
}

func TestSetValuationSettings_RejectsUnknownMethod(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.SetValuationSettings(context.Background(), id.New(), Method("LIFO"))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestValuation(t *testing.T) {
	productID := id.New()
	base := time.Now().UTC()
	svc, _ := newTestService([]*lot.StockLot{
		testLot(productID, "LOT-00001", 10, "5.00", base),
		testLot(productID, "LOT-00002", 5, "8.00", base.Add(time.Hour)),
	})

	v, err := svc.Valuation(context.Background(), productID)
	require.NoError(t, err)

	assert.Equal(t, MethodWeightedAverage, v.Method)
	assert.Equal(t, types.NewQuantityFromFloat64(15), v.TotalQuantity)
	assert.True(t, v.TotalValue.Equal(types.MustMoney("90.00")), "got %s", v.TotalValue)
	assert.True(t, v.UnitCost.Equal(types.MustMoney("6.00")), "got %s", v.UnitCost)
	assert.Equal(t, 2, v.LotCount)

	empty, err := svc.Valuation(context.Background(), id.New())
	require.NoError(t, err)
	assert.Equal(t, 0, empty.LotCount)
	assert.True(t, empty.UnitCost.Equal(decimal.Zero))
	assert.True(t, empty.TotalValue.IsZero())
}
