package state_test

import (
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

func TestWorstCaseBaseAmount(t *testing.T) {
	tests := []struct {
		name             string
		base, bids, asks int64
		want             int64
	}{
		{"flat with resting bids", 0, 5, -3, 5},
		{"flat tie takes asks", 0, 3, -3, -3},
		{"long with bids stacking", 10, 2, -15, -5},
		{"long with small asks", 10, 2, -1, 12},
		{"short with asks stacking", -10, 3, -4, -14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := state.NewPerpPosition(0)
			p.BaseAssetAmount = num.BN(tt.base)
			p.OpenBids = num.BN(tt.bids)
			p.OpenAsks = num.BN(tt.asks)
			if got := p.WorstCaseBaseAmount(); got.Cmp(num.BN(tt.want)) != 0 {
				t.Errorf("worst case = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestWorstCaseBaseAmountTieBreak(t *testing.T) {
	// base 10, bids +2 -> 12; asks -22 -> -12: equal magnitude resolves to
	// the ask side.
	p := state.NewPerpPosition(0)
	p.BaseAssetAmount = num.BN(10)
	p.OpenBids = num.BN(2)
	p.OpenAsks = num.BN(-22)
	if got := p.WorstCaseBaseAmount(); got.Cmp(num.BN(-12)) != 0 {
		t.Errorf("worst case = %s, want -12", got)
	}
}

func TestUnrealizedFunding(t *testing.T) {
	long := state.NewPerpPosition(0)
	long.BaseAssetAmount = num.BN(constants.BasePrecision)

	// 2 quote per base accrued: the long pays.
	got, err := long.UnrealizedFunding(num.BN(2*constants.FundingRateToQuotePrecisionRatio), constants.FundingRateToQuotePrecisionRatio)
	if err != nil {
		t.Fatalf("UnrealizedFunding: %v", err)
	}
	if want := num.BN(-2*constants.QuotePrecision * 1000); got.Cmp(want) != 0 {
		t.Errorf("long funding = %s, want %s", got, want)
	}

	short := state.NewPerpPosition(0)
	short.BaseAssetAmount = num.BN(-constants.BasePrecision)
	got, err = short.UnrealizedFunding(num.BN(2*constants.FundingRateToQuotePrecisionRatio), constants.FundingRateToQuotePrecisionRatio)
	if err != nil {
		t.Fatalf("UnrealizedFunding: %v", err)
	}
	if got.Sign() <= 0 {
		t.Errorf("short funding = %s, want > 0", got)
	}

	// A caught-up cursor accrues nothing.
	long.LastCumulativeFundingRate = num.BN(2*constants.FundingRateToQuotePrecisionRatio)
	got, err = long.UnrealizedFunding(num.BN(2*constants.FundingRateToQuotePrecisionRatio), constants.FundingRateToQuotePrecisionRatio)
	if err != nil {
		t.Fatalf("UnrealizedFunding: %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("caught-up funding = %s, want 0", got)
	}

	// Flat positions carry no funding claim.
	flat := state.NewPerpPosition(0)
	got, err = flat.UnrealizedFunding(num.BN(5*constants.FundingRateToQuotePrecisionRatio), constants.FundingRateToQuotePrecisionRatio)
	if err != nil {
		t.Fatalf("UnrealizedFunding: %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("flat funding = %s, want 0", got)
	}
}

func TestSignedTokenAmount(t *testing.T) {
	market := testutil.NewTestSpotMarket(t)

	deposit := state.NewSpotPosition(1)
	deposit.ScaledBalance = num.BN(5*constants.SpotBalancePrecision)
	got, err := deposit.SignedTokenAmount(market)
	if err != nil {
		t.Fatalf("SignedTokenAmount: %v", err)
	}
	if want := num.BN(5*constants.SpotBalancePrecision); got.Cmp(want) != 0 {
		t.Errorf("deposit tokens = %s, want %s", got, want)
	}

	borrow := state.NewSpotPosition(1)
	borrow.ScaledBalance = num.BN(5*constants.SpotBalancePrecision)
	borrow.BalanceType = state.BalanceTypeBorrow
	got, err = borrow.SignedTokenAmount(market)
	if err != nil {
		t.Fatalf("SignedTokenAmount: %v", err)
	}
	if want := num.BN(-5*constants.SpotBalancePrecision); got.Cmp(want) != 0 {
		t.Errorf("borrow tokens = %s, want %s", got, want)
	}
}

func TestWorstCaseTokenAmount(t *testing.T) {
	market := testutil.NewTestSpotMarket(t)

	p := state.NewSpotPosition(1)
	p.ScaledBalance = num.BN(5*constants.SpotBalancePrecision)
	p.OpenBids = num.BN(2*constants.SpotBalancePrecision)
	p.OpenAsks = num.BN(-10*constants.SpotBalancePrecision)

	got, err := p.WorstCaseTokenAmount(market)
	if err != nil {
		t.Fatalf("WorstCaseTokenAmount: %v", err)
	}
	// Deposit of 5: bids reach 7, asks reach -5; bids win on magnitude.
	if want := num.BN(7*constants.SpotBalancePrecision); got.Cmp(want) != 0 {
		t.Errorf("worst case = %s, want %s", got, want)
	}
}

func TestPerpPositionIsOpen(t *testing.T) {
	p := state.NewPerpPosition(0)
	if p.IsOpen() {
		t.Error("fresh position reports open")
	}
	p.OpenOrders = 1
	if !p.IsOpen() {
		t.Error("position with resting orders reports closed")
	}
}

func TestUserPrune(t *testing.T) {
	u := testutil.NewTestUser(t)
	u.GetOrCreatePerpPosition(0)
	spot := u.GetOrCreateSpotPosition(1)
	spot.ScaledBalance = num.BN(constants.SpotBalancePrecision)

	u.Prune()

	if _, ok := u.PerpPosition(0); ok {
		t.Error("empty perp position survived prune")
	}
	if _, ok := u.SpotPosition(1); !ok {
		t.Error("funded spot position pruned")
	}
}
