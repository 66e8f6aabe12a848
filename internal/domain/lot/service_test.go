package lot

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
)

// --- Fakes ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	lots map[id.ID]*StockLot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lots: make(map[id.ID]*StockLot)}
}

func (r *fakeRepo) Create(_ context.Context, l *StockLot) error {
	cp := *l
	r.lots[l.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, lotID id.ID) (*StockLot, error) {
	l, ok := r.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("lot", lotID.String())
	}
	cp := *l
	return &cp, nil
}

func (r *fakeRepo) GetByIDForUpdate(ctx context.Context, lotID id.ID) (*StockLot, error) {
	return r.GetByID(ctx, lotID)
}

func (r *fakeRepo) ListByProduct(_ context.Context, productID id.ID, includeEmpty bool) ([]*StockLot, error) {
	var out []*StockLot
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

func (r *fakeRepo) ListByIDs(ctx context.Context, lotIDs []id.ID) ([]*StockLot, error) {
	var out []*StockLot
	for _, lid := range lotIDs {
		l, err := r.GetByID(ctx, lid)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *fakeRepo) ListByIDsForUpdate(ctx context.Context, lotIDs []id.ID) ([]*StockLot, error) {
	return r.ListByIDs(ctx, lotIDs)
}

func (r *fakeRepo) ListExpiring(_ context.Context, deadline time.Time) ([]*StockLot, error) {
	var out []*StockLot
	for _, l := range r.lots {
		if l.ExpiryDate != nil && !l.ExpiryDate.After(deadline) && !l.RemainingQuantity.IsZero() {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetRemaining(_ context.Context, lotID id.ID, remaining types.Quantity) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.RemainingQuantity = remaining
	return nil
}

func (r *fakeRepo) SetExpiry(_ context.Context, lotID id.ID, expiry *time.Time) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.ExpiryDate = expiry
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, lotID id.ID) error {
	delete(r.lots, lotID)
	return nil
}

func (r *fakeRepo) SumRemaining(_ context.Context, productID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	for _, l := range r.lots {
		if l.ProductID == productID {
			sum += l.RemainingQuantity
		}
	}
	return sum, nil
}

func (r *fakeRepo) CountByProduct(_ context.Context, productID id.ID) (int64, error) {
	var n int64
	for _, l := range r.lots {
		if l.ProductID == productID {
			n++
		}
	}
	return n, nil
}

// fakeWriter records calls instead of appending real movements.
type fakeWriter struct {
	repo     *fakeRepo
	receipts []receiptCall
}

type receiptCall struct {
	lotID  id.ID
	reason string
	actor  string
}

func (w *fakeWriter) AppendReceipt(_ context.Context, l *StockLot, reason, actor string) error {
	w.receipts = append(w.receipts, receiptCall{lotID: l.ID, reason: reason, actor: actor})
	return nil
}

func (w *fakeWriter) AdjustTo(ctx context.Context, lotID id.ID, newRemaining types.Quantity, reason, actor string) (*StockLot, error) {
	l, err := w.repo.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if newRemaining > l.InitialQuantity {
		return nil, apperror.NewInvalidQuantity("remaining quantity must be within [0, initial quantity]")
	}
	if err := w.repo.SetRemaining(ctx, lotID, newRemaining); err != nil {
		return nil, err
	}
	l.RemainingQuantity = newRemaining
	return l, nil
}

type fakeNumbers struct {
	next int
}

func (n *fakeNumbers) NextLotNumber(_ context.Context, _ id.ID) (string, error) {
	n.next++
	return fmt.Sprintf("LOT-%05d", n.next), nil
}

func newTestStore(horizon time.Duration) (*Store, *fakeRepo, *fakeWriter) {
	repo := newFakeRepo()
	writer := &fakeWriter{repo: repo}
	store := NewStore(repo, writer, &fakeNumbers{}, fakeTxManager{}, horizon)
	return store, repo, writer
}

// --- Tests ---

func TestCreateLot(t *testing.T) {
	store, repo, writer := newTestStore(0)
	ctx := context.Background()
	productID := id.New()

	l, err := store.CreateLot(ctx, CreateLotInput{
		ProductID:       productID,
		InitialQuantity: types.NewQuantityFromFloat64(50),
		PurchasePrice:   types.MustMoney("3.20"),
		Actor:           "warehouse",
	})
	require.NoError(t, err)

	assert.False(t, id.IsNil(l.ID))
	assert.Equal(t, "LOT-00001", l.LotNumber)
	assert.Equal(t, l.InitialQuantity, l.RemainingQuantity)
	assert.False(t, l.CreatedAt.IsZero())

	stored, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.LotNumber, stored.LotNumber)

	// The opening movement carries the default reason.
	require.Len(t, writer.receipts, 1)
	assert.Equal(t, l.ID, writer.receipts[0].lotID)
	assert.Equal(t, "receipt", writer.receipts[0].reason)
	assert.Equal(t, "warehouse", writer.receipts[0].actor)
}

func TestCreateLot_SequentialNumbers(t *testing.T) {
	store, _, _ := newTestStore(0)
	ctx := context.Background()
	productID := id.New()

	for i := 1; i <= 3; i++ {
		l, err := store.CreateLot(ctx, CreateLotInput{
			ProductID:       productID,
			InitialQuantity: types.NewQuantityFromFloat64(10),
			PurchasePrice:   types.MustMoney("1.00"),
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("LOT-%05d", i), l.LotNumber)
	}
}

func TestCreateLot_Validation(t *testing.T) {
	store, _, writer := newTestStore(0)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateLotInput
		code string
	}{
		{
			name: "missing product",
			in: CreateLotInput{
				InitialQuantity: types.NewQuantityFromFloat64(10),
				PurchasePrice:   types.MustMoney("1.00"),
			},
			code: apperror.CodeValidation,
		},
		{
			name: "zero quantity",
			in: CreateLotInput{
				ProductID:     id.New(),
				PurchasePrice: types.MustMoney("1.00"),
			},
			code: apperror.CodeInvalidQuantity,
		},
		{
			name: "negative quantity",
			in: CreateLotInput{
				ProductID:       id.New(),
				InitialQuantity: types.NewQuantityFromFloat64(-10),
				PurchasePrice:   types.MustMoney("1.00"),
			},
			code: apperror.CodeInvalidQuantity,
		},
		{
			name: "negative price",
			in: CreateLotInput{
				ProductID:       id.New(),
				InitialQuantity: types.NewQuantityFromFloat64(10),
				PurchasePrice:   types.MustMoney("-1.00"),
			},
			code: apperror.CodeInvalidPrice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateLot(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, writer.receipts)
}

func TestAdjustQuantity(t *testing.T) {
	store, repo, _ := newTestStore(0)
	ctx := context.Background()

	l, err := store.CreateLot(ctx, CreateLotInput{
		ProductID:       id.New(),
		InitialQuantity: types.NewQuantityFromFloat64(40),
		PurchasePrice:   types.MustMoney("2.00"),
	})
	require.NoError(t, err)

	adjusted, err := store.AdjustQuantity(ctx, l.ID, types.NewQuantityFromFloat64(15), "stocktake", "manager")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(15), adjusted.RemainingQuantity)

	stored, _ := repo.GetByID(ctx, l.ID)
	assert.Equal(t, types.NewQuantityFromFloat64(15), stored.RemainingQuantity)

	_, err = store.AdjustQuantity(ctx, l.ID, types.NewQuantityFromFloat64(15), "", "manager")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = store.AdjustQuantity(ctx, l.ID, types.NewQuantityFromFloat64(-1), "stocktake", "manager")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidQuantity))
}

func TestExpiringLots(t *testing.T) {
	store, repo, _ := newTestStore(7 * 24 * time.Hour)
	ctx := context.Background()
	productID := id.New()

	soon := time.Now().UTC().Add(3 * 24 * time.Hour)
	far := time.Now().UTC().Add(60 * 24 * time.Hour)

	expiring, err := store.CreateLot(ctx, CreateLotInput{
		ProductID:       productID,
		InitialQuantity: types.NewQuantityFromFloat64(5),
		PurchasePrice:   types.MustMoney("1.00"),
		ExpiryDate:      &soon,
	})
	require.NoError(t, err)

	_, err = store.CreateLot(ctx, CreateLotInput{
		ProductID:       productID,
		InitialQuantity: types.NewQuantityFromFloat64(5),
		PurchasePrice:   types.MustMoney("1.00"),
		ExpiryDate:      &far,
	})
	require.NoError(t, err)

	lots, err := store.ExpiringLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, expiring.ID, lots[0].ID)
	assert.Equal(t, StatusExpiringSoon, store.StatusOf(lots[0]))

	// Sold out lots drop off the expiring report.
	require.NoError(t, repo.SetRemaining(ctx, expiring.ID, 0))
	lots, err = store.ExpiringLots(ctx)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestNewStore_DefaultHorizon(t *testing.T) {
	store, _, _ := newTestStore(0)
	assert.Equal(t, DefaultExpiryHorizon, store.Horizon())

	custom, _, _ := newTestStore(14 * 24 * time.Hour)
	assert.Equal(t, 14*24*time.Hour, custom.Horizon())
}
