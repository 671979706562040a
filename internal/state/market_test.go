package state_test

import (
	"math/big"
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

func TestMarginRatioModes(t *testing.T) {
	m := testutil.NewTestPerpMarket(t)
	size := num.BN(1000*constants.QuotePrecision)

	initial, err := m.MarginRatio(size, true)
	if err != nil {
		t.Fatalf("MarginRatio initial: %v", err)
	}
	if initial != 1000 {
		t.Errorf("initial ratio = %d, want 1000", initial)
	}

	maintenance, err := m.MarginRatio(size, false)
	if err != nil {
		t.Fatalf("MarginRatio maintenance: %v", err)
	}
	if maintenance != 500 {
		t.Errorf("maintenance ratio = %d, want 500", maintenance)
	}
}

func TestMarginRatioIMFPremium(t *testing.T) {
	m := testutil.NewTestPerpMarket(t)
	m.IMFFactor = 550

	// Small notional stays on the configured floor.
	small, err := m.MarginRatio(num.BN(1000*constants.QuotePrecision), true)
	if err != nil {
		t.Fatalf("MarginRatio: %v", err)
	}
	if small != 1000 {
		t.Errorf("small-size ratio = %d, want floor 1000", small)
	}

	// A $100m worst case steepens well past the floor.
	large, err := m.MarginRatio(new(big.Int).SetInt64(100_000_000*constants.QuotePrecision), true)
	if err != nil {
		t.Fatalf("MarginRatio: %v", err)
	}
	if large != 2539 {
		t.Errorf("large-size ratio = %d, want 2539", large)
	}

	// Maintenance ignores the premium curve entirely.
	maintenance, err := m.MarginRatio(new(big.Int).SetInt64(100_000_000*constants.QuotePrecision), false)
	if err != nil {
		t.Fatalf("MarginRatio: %v", err)
	}
	if maintenance != 500 {
		t.Errorf("maintenance ratio = %d, want 500", maintenance)
	}
}

func TestSizeDiscountWeight(t *testing.T) {
	// Zero IMF leaves the configured weight untouched.
	w, err := state.SizeDiscountWeight(num.BN(1_000_000_000_000), 0, 8000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizeDiscountWeight: %v", err)
	}
	if w != 8000 {
		t.Errorf("weight = %d, want 8000 with zero imf", w)
	}

	// Small sizes cap at the configured weight.
	w, err = state.SizeDiscountWeight(num.BN(1000*constants.QuotePrecision), 550, 8000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizeDiscountWeight: %v", err)
	}
	if w != 8000 {
		t.Errorf("small-size weight = %d, want 8000", w)
	}

	// $10b discounts hard.
	w, err = state.SizeDiscountWeight(new(big.Int).SetInt64(10_000_000_000*constants.QuotePrecision), 550, 8000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizeDiscountWeight: %v", err)
	}
	if w != 4015 {
		t.Errorf("large-size weight = %d, want 4015", w)
	}
}

func TestSizePremiumWeight(t *testing.T) {
	w, err := state.SizePremiumWeight(num.BN(1000*constants.QuotePrecision), 0, 12000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizePremiumWeight: %v", err)
	}
	if w != 12000 {
		t.Errorf("weight = %d, want 12000 with zero imf", w)
	}

	small, err := state.SizePremiumWeight(num.BN(1000*constants.QuotePrecision), 550, 12000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizePremiumWeight: %v", err)
	}
	if small != 12000 {
		t.Errorf("small-size weight = %d, want floor 12000", small)
	}

	large, err := state.SizePremiumWeight(new(big.Int).SetInt64(10_000_000_000*constants.QuotePrecision), 550, 12000, constants.SpotWeightPrecision)
	if err != nil {
		t.Fatalf("SizePremiumWeight: %v", err)
	}
	if large <= 12000 {
		t.Errorf("large-size weight = %d, want above 12000", large)
	}
}

func TestSettlementPrice(t *testing.T) {
	m := testutil.NewTestPerpMarket(t)
	oraclePrice := num.BN(105*constants.PricePrecision)

	if got := m.SettlementPrice(oraclePrice); got.Cmp(oraclePrice) != 0 {
		t.Errorf("active market price = %s, want oracle %s", got, oraclePrice)
	}

	m.Status = state.MarketStatusSettled
	m.ExpirySettlementPrice = num.BN(90*constants.PricePrecision)
	if got := m.SettlementPrice(oraclePrice); got.Cmp(m.ExpirySettlementPrice) != 0 {
		t.Errorf("settled market price = %s, want frozen %s", got, m.ExpirySettlementPrice)
	}
}

func TestMarketStoreRejectsDuplicates(t *testing.T) {
	store := testutil.NewTestMarketStore(t)

	if err := store.AddPerpMarket(testutil.NewTestPerpMarket(t)); err == nil {
		t.Error("duplicate perp market listed without error")
	}
	if err := store.AddSpotMarket(testutil.NewTestQuoteMarket(t)); err == nil {
		t.Error("duplicate spot market listed without error")
	}

	if _, ok := store.QuoteSpotMarket(); !ok {
		t.Error("quote market missing from seeded store")
	}
	if _, ok := store.PerpMarket(9); ok {
		t.Error("unknown perp market index resolved")
	}
}
