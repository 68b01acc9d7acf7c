package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	cart := []Item{
		{Price: decimal.NewFromInt(45000), Quantity: 2},
		{Price: decimal.NewFromInt(15000), Quantity: 1},
	}

	tests := []struct {
		name    string
		terms   Terms
		items   []Item
		want    int64
		wantErr error
	}{
		{
			name:  "percentage",
			terms: Terms{DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)},
			items: cart,
			want:  10500,
		},
		{
			name: "percentage capped by max discount",
			terms: Terms{
				DiscountType: DiscountPercentage,
				Value:        decimal.NewFromInt(50),
				MaxDiscount:  decimal.NewFromInt(20000),
			},
			items: cart,
			want:  20000,
		},
		{
			name:  "fixed amount",
			terms: Terms{DiscountType: DiscountFixed, Value: decimal.NewFromInt(30000)},
			items: cart,
			want:  30000,
		},
		{
			name:  "fixed amount capped at subtotal",
			terms: Terms{DiscountType: DiscountFixed, Value: decimal.NewFromInt(500000)},
			items: cart,
			want:  105000,
		},
		{
			name:  "free lowest unit",
			terms: Terms{DiscountType: DiscountFreeLowest, MinItems: 2},
			items: cart,
			want:  15000,
		},
		{
			name:    "min items not met",
			terms:   Terms{DiscountType: DiscountFreeLowest, MinItems: 4},
			items:   cart,
			wantErr: ErrMinimumNotMet,
		},
		{
			name: "min order amount not met",
			terms: Terms{
				DiscountType:   DiscountFixed,
				Value:          decimal.NewFromInt(10000),
				MinOrderAmount: decimal.NewFromInt(200000),
			},
			items:   cart,
			wantErr: ErrMinimumNotMet,
		},
		{
			name:  "empty cart grants nothing",
			terms: Terms{DiscountType: DiscountFixed, Value: decimal.NewFromInt(10000)},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Apply(tt.terms, tt.items)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Amount.IntPart())
		})
	}
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(Terms{DiscountType: "bogo"}, []Item{{Price: decimal.NewFromInt(1), Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}
