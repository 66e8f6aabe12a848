package lot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

func TestStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	horizon := 30 * 24 * time.Hour

	expiry := func(d time.Time) *time.Time { return &d }

	tests := []struct {
		name      string
		remaining float64
		expiry    *time.Time
		want      Status
	}{
		{
			name:      "no expiry, stock on hand",
			remaining: 10,
			want:      StatusAvailable,
		},
		{
			name:      "expiry beyond the horizon",
			remaining: 10,
			expiry:    expiry(now.Add(45 * 24 * time.Hour)),
			want:      StatusAvailable,
		},
		{
			name:      "expiry within the horizon",
			remaining: 10,
			expiry:    expiry(now.Add(10 * 24 * time.Hour)),
			want:      StatusExpiringSoon,
		},
		{
			name:      "expiry exactly at the horizon edge",
			remaining: 10,
			expiry:    expiry(now.Add(horizon)),
			want:      StatusExpiringSoon,
		},
		{
			name:      "expiry in the past",
			remaining: 10,
			expiry:    expiry(now.Add(-time.Hour)),
			want:      StatusExpired,
		},
		{
			name:      "sold out wins over expired",
			remaining: 0,
			expiry:    expiry(now.Add(-time.Hour)),
			want:      StatusSoldOut,
		},
		{
			name:      "sold out wins over expiring soon",
			remaining: 0,
			expiry:    expiry(now.Add(24 * time.Hour)),
			want:      StatusSoldOut,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &StockLot{
				InitialQuantity:   types.NewQuantityFromFloat64(100),
				RemainingQuantity: types.NewQuantityFromFloat64(tt.remaining),
				ExpiryDate:        tt.expiry,
			}
			assert.Equal(t, tt.want, l.StatusAt(now, horizon))
		})
	}
}

func TestTotalValue(t *testing.T) {
	l := &StockLot{
		RemainingQuantity: types.NewQuantityFromFloat64(12.5),
		PurchasePrice:     types.MustMoney("4.80"),
	}
	assert.True(t, l.TotalValue().Equal(types.MustMoney("60.00")),
		"got %s", l.TotalValue())

	empty := &StockLot{PurchasePrice: types.MustMoney("4.80")}
	assert.True(t, empty.TotalValue().IsZero())
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	valid := func() *StockLot {
		return &StockLot{
			ID:                id.New(),
			ProductID:         id.New(),
			InitialQuantity:   types.NewQuantityFromFloat64(10),
			RemainingQuantity: types.NewQuantityFromFloat64(10),
			PurchasePrice:     types.MustMoney("1.50"),
		}
	}

	require.NoError(t, valid().Validate(ctx))

	l := valid()
	l.ProductID = id.Nil()
	assert.True(t, apperror.IsCode(l.Validate(ctx), apperror.CodeValidation))

	l = valid()
	l.InitialQuantity = 0
	assert.True(t, apperror.IsCode(l.Validate(ctx), apperror.CodeInvalidQuantity))

	l = valid()
	l.InitialQuantity = types.NewQuantityFromFloat64(-5)
	assert.True(t, apperror.IsCode(l.Validate(ctx), apperror.CodeInvalidQuantity))

	l = valid()
	l.PurchasePrice = types.MustMoney("-0.01")
	assert.True(t, apperror.IsCode(l.Validate(ctx), apperror.CodeInvalidPrice))

	l = valid()
	l.RemainingQuantity = types.NewQuantityFromFloat64(11)
	assert.True(t, apperror.IsCode(l.Validate(ctx), apperror.CodeInvalidQuantity))

	// Zero price is allowed: migrated legacy stock may have no cost.
	l = valid()
	l.PurchasePrice = types.ZeroMoney()
	require.NoError(t, l.Validate(ctx))
}
