package amm_test

import (
	"errors"
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

func TestStandardizeBaseAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		step   int64
		want   int64
	}{
		{"exact multiple", 100, 10, 100},
		{"floors remainder", 125, 10, 120},
		{"below one step", 7, 10, 0},
		{"negative floors toward zero exposure", -125, 10, -130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := amm.StandardizeBaseAmount(num.BN(tt.amount), tt.step)
			if err != nil {
				t.Fatalf("StandardizeBaseAmount: %v", err)
			}
			if got.Cmp(num.BN(tt.want)) != 0 {
				t.Errorf("standardized = %s, want %d", got, tt.want)
			}
		})
	}

	if _, err := amm.StandardizeBaseAmount(num.BN(100), 0); !errors.Is(err, amm.ErrInvalidInput) {
		t.Errorf("zero step error = %v, want ErrInvalidInput", err)
	}
}

func TestMaxBaseAssetAmountFillable(t *testing.T) {
	a := testutil.NewTestAMM(t)

	// Both sides have ample depth: the reserve fraction cap binds at 1% of
	// the base reserve.
	wantCap := num.BN(constants.AMMReservePrecision)
	for _, direction := range []amm.PositionDirection{amm.Long, amm.Short} {
		got, err := a.MaxBaseAssetAmountFillable(direction)
		if err != nil {
			t.Fatalf("MaxBaseAssetAmountFillable(%v): %v", direction, err)
		}
		if got.Cmp(wantCap) != 0 {
			t.Errorf("fillable %v = %s, want %s", direction, got, wantCap)
		}
	}
}

func TestMaxBaseAssetAmountFillableExhaustedSide(t *testing.T) {
	a := testutil.NewTestAMM(t)

	// Pin the reserve at the min bound: no ask-side depth remains.
	a.BaseAssetReserve = num.Clone(a.MinBaseAssetReserve)
	got, err := a.MaxBaseAssetAmountFillable(amm.Long)
	if err != nil {
		t.Fatalf("MaxBaseAssetAmountFillable: %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("fillable on exhausted side = %s, want 0", got)
	}
}
