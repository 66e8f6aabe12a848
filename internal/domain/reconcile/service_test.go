package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/product"
)

// --- Fakes ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeProductGateway struct {
	products map[id.ID]*product.Product
	order    []id.ID

	// failStockUpdate simulates a per-product storage failure.
	failStockUpdate map[id.ID]error
}

func newFakeProductGateway() *fakeProductGateway {
	return &fakeProductGateway{
		products:        make(map[id.ID]*product.Product),
		failStockUpdate: make(map[id.ID]error),
	}
}

func (g *fakeProductGateway) add(p *product.Product) {
	g.products[p.ID] = p
	g.order = append(g.order, p.ID)
}

func (g *fakeProductGateway) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	p, ok := g.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	cp := *p
	return &cp, nil
}

func (g *fakeProductGateway) Exists(_ context.Context, productID id.ID) (bool, error) {
	_, ok := g.products[productID]
	return ok, nil
}

func (g *fakeProductGateway) ListIDs(_ context.Context) ([]id.ID, error) {
	return g.order, nil
}

func (g *fakeProductGateway) UpdateStock(_ context.Context, productID id.ID, stock types.Quantity) error {
	if err := g.failStockUpdate[productID]; err != nil {
		return err
	}
	p, ok := g.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID.String())
	}
	p.Stock = stock
	return nil
}

type fakeLotRepo struct {
	lots map[id.ID]*lot.StockLot
}

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{lots: make(map[id.ID]*lot.StockLot)}
}

func (r *fakeLotRepo) Create(_ context.Context, l *lot.StockLot) error {
	cp := *l
	r.lots[l.ID] = &cp
	return nil
}

func (r *fakeLotRepo) GetByID(_ context.Context, lotID id.ID) (*lot.StockLot, error) {
	l, ok := r.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("lot", lotID.String())
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLotRepo) GetByIDForUpdate(ctx context.Context, lotID id.ID) (*lot.StockLot, error) {
	return r.GetByID(ctx, lotID)
}

func (r *fakeLotRepo) ListByProduct(_ context.Context, productID id.ID, includeEmpty bool) ([]*lot.StockLot, error) {
	var out []*lot.StockLot
	for _, l := range r.lots {
		if l.ProductID != productID {
			continue
		}
		if !includeEmpty && l.RemainingQuantity.IsZero() {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeLotRepo) ListByIDs(ctx context.Context, lotIDs []id.ID) ([]*lot.StockLot, error) {
	var out []*lot.StockLot
	for _, lid := range lotIDs {
		l, err := r.GetByID(ctx, lid)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *fakeLotRepo) ListByIDsForUpdate(ctx context.Context, lotIDs []id.ID) ([]*lot.StockLot, error) {
	return r.ListByIDs(ctx, lotIDs)
}

func (r *fakeLotRepo) ListExpiring(_ context.Context, deadline time.Time) ([]*lot.StockLot, error) {
	var out []*lot.StockLot
	for _, l := range r.lots {
		if l.ExpiryDate != nil && !l.ExpiryDate.After(deadline) && !l.RemainingQuantity.IsZero() {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLotRepo) SetRemaining(_ context.Context, lotID id.ID, remaining types.Quantity) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.RemainingQuantity = remaining
	return nil
}

func (r *fakeLotRepo) SetExpiry(_ context.Context, lotID id.ID, expiry *time.Time) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.ExpiryDate = expiry
	return nil
}

func (r *fakeLotRepo) Delete(_ context.Context, lotID id.ID) error {
	delete(r.lots, lotID)
	return nil
}

func (r *fakeLotRepo) SumRemaining(_ context.Context, productID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	for _, l := range r.lots {
		if l.ProductID == productID {
			sum += l.RemainingQuantity
		}
	}
	return sum, nil
}

func (r *fakeLotRepo) CountByProduct(_ context.Context, productID id.ID) (int64, error) {
	var n int64
	for _, l := range r.lots {
		if l.ProductID == productID {
			n++
		}
	}
	return n, nil
}

type fakeMovementRepo struct {
	movements []*ledger.StockMovement
}

func (r *fakeMovementRepo) Create(_ context.Context, m *ledger.StockMovement) error {
	cp := *m
	r.movements = append(r.movements, &cp)
	return nil
}

func (r *fakeMovementRepo) ListByProduct(_ context.Context, productID id.ID, limit, offset int) ([]*ledger.StockMovement, error) {
	var out []*ledger.StockMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].ProductID == productID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) ListByLot(_ context.Context, lotID id.ID) ([]*ledger.StockMovement, error) {
	var out []*ledger.StockMovement
	for _, m := range r.movements {
		if m.LotID == lotID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) CountByProduct(_ context.Context, productID id.ID) (int64, error) {
	var n int64
	for _, m := range r.movements {
		if m.ProductID == productID {
			n++
		}
	}
	return n, nil
}

type fakeNumbers struct{ next int }

func (n *fakeNumbers) NextLotNumber(_ context.Context, _ id.ID) (string, error) {
	n.next++
	return fmt.Sprintf("LOT-%05d", n.next), nil
}

// --- Harness ---

type harness struct {
	svc      *Service
	gateway  *fakeProductGateway
	lotRepo  *fakeLotRepo
	movRepo  *fakeMovementRepo
	store    *lot.Store
	movement *ledger.Service
}

func newHarness() *harness {
	gateway := newFakeProductGateway()
	lotRepo := newFakeLotRepo()
	movRepo := &fakeMovementRepo{}
	txm := fakeTxManager{}

	movement := ledger.NewService(movRepo, lotRepo, txm)
	store := lot.NewStore(lotRepo, movement, &fakeNumbers{}, txm, 0)

	return &harness{
		svc:      NewService(gateway, lotRepo, store, movement, txm),
		gateway:  gateway,
		lotRepo:  lotRepo,
		movRepo:  movRepo,
		store:    store,
		movement: movement,
	}
}

func newProduct(stock float64, price string) *product.Product {
	return &product.Product{
		ID:            id.New(),
		SKU:           "SKU-001",
		Name:          "Widget",
		Stock:         types.NewQuantityFromFloat64(stock),
		PurchasePrice: types.MustMoney(price),
	}
}

// --- Tests ---

func TestSyncProductStock_Idempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "2.00")
	h.gateway.add(p)

	for i := 0; i < 2; i++ {
		_, err := h.store.CreateLot(ctx, lot.CreateLotInput{
			ProductID:       p.ID,
			InitialQuantity: types.NewQuantityFromFloat64(10),
			PurchasePrice:   types.MustMoney("2.00"),
		})
		require.NoError(t, err)
	}

	require.NoError(t, h.svc.SyncProductStock(ctx, p.ID))
	first := h.gateway.products[p.ID].Stock
	assert.Equal(t, types.NewQuantityFromFloat64(20), first)

	// No intervening writes: the second run lands on the same value.
	require.NoError(t, h.svc.SyncProductStock(ctx, p.ID))
	assert.Equal(t, first, h.gateway.products[p.ID].Stock)
}

func TestSyncAllStocks_CollectsPartialFailures(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	good := newProduct(0, "1.00")
	bad := newProduct(0, "1.00")
	h.gateway.add(good)
	h.gateway.add(bad)
	h.gateway.failStockUpdate[bad.ID] = apperror.NewDatabase(fmt.Errorf("connection reset"))

	_, err := h.store.CreateLot(ctx, lot.CreateLotInput{
		ProductID:       good.ID,
		InitialQuantity: types.NewQuantityFromFloat64(7),
		PurchasePrice:   types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	failures, err := h.svc.SyncAllStocks(ctx)
	require.NoError(t, err)

	require.Len(t, failures, 1)
	assert.Equal(t, bad.ID, failures[0].ProductID)
	// The failing product does not abort the sweep.
	assert.Equal(t, types.NewQuantityFromFloat64(7), h.gateway.products[good.ID].Stock)
}

func TestEnsureProductHasLots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(25, "3.50")
	h.gateway.add(p)

	created, err := h.svc.EnsureProductHasLots(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, types.NewQuantityFromFloat64(25), created.InitialQuantity)
	assert.Equal(t, created.InitialQuantity, created.RemainingQuantity)
	assert.True(t, created.PurchasePrice.Equal(types.MustMoney("3.50")))

	// The opening movement is a RECEIPT tagged as migration.
	movements, err := h.movRepo.ListByLot(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, ledger.TypeReceipt, movements[0].Type)
	assert.Equal(t, "migration", movements[0].Reason)

	// Second call is a no-op.
	again, err := h.svc.EnsureProductHasLots(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEnsureProductHasLots_NoLegacyStock(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "3.50")
	h.gateway.add(p)

	created, err := h.svc.EnsureProductHasLots(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, created)

	n, _ := h.lotRepo.CountByProduct(ctx, p.ID)
	assert.Zero(t, n)
}

func TestMigrate_Idempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.gateway.add(newProduct(10, "1.00"))
	h.gateway.add(newProduct(5, "2.00"))
	h.gateway.add(newProduct(0, "3.00")) // nothing to migrate

	summary, err := h.svc.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProductsMigrated)
	assert.Equal(t, 2, summary.LotsCreated)
	assert.Empty(t, summary.Failures)

	// Re-running creates nothing.
	summary, err = h.svc.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ProductsMigrated)
	assert.Equal(t, 0, summary.LotsCreated)
}

func TestAdjustStockDirectly_SingleLot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "2.00")
	h.gateway.add(p)

	l, err := h.store.CreateLot(ctx, lot.CreateLotInput{
		ProductID:       p.ID,
		InitialQuantity: types.NewQuantityFromFloat64(30),
		PurchasePrice:   types.MustMoney("2.00"),
	})
	require.NoError(t, err)

	adjusted, err := h.svc.AdjustStockDirectly(ctx, p.ID, types.NewQuantityFromFloat64(12), "manager")
	require.NoError(t, err)
	assert.Equal(t, l.ID, adjusted.ID)
	assert.Equal(t, types.NewQuantityFromFloat64(12), adjusted.RemainingQuantity)

	// The aggregate follows the lot.
	assert.Equal(t, types.NewQuantityFromFloat64(12), h.gateway.products[p.ID].Stock)
}

func TestAdjustStockDirectly_MultipleLots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "2.00")
	h.gateway.add(p)

	first, err := h.store.CreateLot(ctx, lot.CreateLotInput{
		ProductID:       p.ID,
		InitialQuantity: types.NewQuantityFromFloat64(10),
		PurchasePrice:   types.MustMoney("2.00"),
	})
	require.NoError(t, err)
	// Force distinct creation times so "most recent" is unambiguous.
	h.lotRepo.lots[first.ID].CreatedAt = first.CreatedAt.Add(-time.Hour)

	second, err := h.store.CreateLot(ctx, lot.CreateLotInput{
		ProductID:       p.ID,
		InitialQuantity: types.NewQuantityFromFloat64(10),
		PurchasePrice:   types.MustMoney("2.00"),
	})
	require.NoError(t, err)

	// Aggregate 20 -> 15: delta -5 lands on the most recent lot.
	adjusted, err := h.svc.AdjustStockDirectly(ctx, p.ID, types.NewQuantityFromFloat64(15), "manager")
	require.NoError(t, err)
	assert.Equal(t, second.ID, adjusted.ID)
	assert.Equal(t, types.NewQuantityFromFloat64(5), adjusted.RemainingQuantity)

	stored, _ := h.lotRepo.GetByID(ctx, first.ID)
	assert.Equal(t, types.NewQuantityFromFloat64(10), stored.RemainingQuantity)
	assert.Equal(t, types.NewQuantityFromFloat64(15), h.gateway.products[p.ID].Stock)
}

func TestAdjustStockDirectly_Ambiguous(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "2.00")
	h.gateway.add(p)

	for i := 0; i < 2; i++ {
		_, err := h.store.CreateLot(ctx, lot.CreateLotInput{
			ProductID:       p.ID,
			InitialQuantity: types.NewQuantityFromFloat64(10),
			PurchasePrice:   types.MustMoney("2.00"),
		})
		require.NoError(t, err)
	}

	// Aggregate 20 -> 5: delta -15 cannot be absorbed by one lot of 10.
	_, err := h.svc.AdjustStockDirectly(ctx, p.ID, types.NewQuantityFromFloat64(5), "manager")
	require.Error(t, err)
	assert.True(t, apperror.IsAmbiguousAdjustment(err))

	// Nothing changed.
	sum, _ := h.lotRepo.SumRemaining(ctx, p.ID)
	assert.Equal(t, types.NewQuantityFromFloat64(20), sum)
}

func TestAdjustStockDirectly_NoLots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	p := newProduct(0, "4.00")
	h.gateway.add(p)

	// Zero target with no lots is a no-op.
	adjusted, err := h.svc.AdjustStockDirectly(ctx, p.ID, 0, "manager")
	require.NoError(t, err)
	assert.Nil(t, adjusted)

	// Positive target bootstraps a lot like migration does.
	adjusted, err = h.svc.AdjustStockDirectly(ctx, p.ID, types.NewQuantityFromFloat64(8), "manager")
	require.NoError(t, err)
	require.NotNil(t, adjusted)
	assert.Equal(t, types.NewQuantityFromFloat64(8), adjusted.RemainingQuantity)
	assert.True(t, adjusted.PurchasePrice.Equal(types.MustMoney("4.00")))
	assert.Equal(t, types.NewQuantityFromFloat64(8), h.gateway.products[p.ID].Stock)
}
