package margin_test

import (
	"errors"
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/margin"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/oracle"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

func newTestEngine(t *testing.T) *margin.Engine {
	t.Helper()
	return margin.NewEngine(testutil.NewTestMarketStore(t))
}

func perpOracles(data *oracle.PriceData) margin.OracleSet {
	return margin.OracleSet{
		Perp: map[uint16]*oracle.PriceData{0: data},
		Spot: map[uint16]*oracle.PriceData{},
	}
}

// depositQuote credits the user a USDC deposit, quote precision 1:1 with the
// scaled balance at a unit interest index.
func depositQuote(user *state.User, dollars int64) {
	pos := user.GetOrCreateSpotPosition(state.QuoteSpotMarketIndex)
	pos.ScaledBalance = num.BN(dollars * constants.SpotBalancePrecision)
}

func TestCalculateQuoteDepositOnly(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	depositQuote(user, 1000)

	calc, err := e.Calculate(user, margin.OracleSet{}, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if want := num.BN(1000*constants.QuotePrecision); calc.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("total collateral = %s, want %s", calc.TotalCollateral, want)
	}
	if calc.MarginRequirement.Sign() != 0 {
		t.Errorf("margin requirement = %s, want 0", calc.MarginRequirement)
	}
	if !calc.MeetsRequirement() || !calc.CanExerciseRisk() {
		t.Error("funded idle account fails margin")
	}
	if calc.FreeCollateral().Cmp(num.BN(1000*constants.QuotePrecision)) != 0 {
		t.Errorf("free collateral = %s", calc.FreeCollateral())
	}
}

func TestCalculatePerpLong(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	depositQuote(user, 100)

	// Long 1 base entered at 100, oracle now 110: +10 unrealized.
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	oracles := perpOracles(testutil.ValidOracle(110*constants.PricePrecision))

	initial, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate initial: %v", err)
	}
	// Full-weight pnl: 100 deposit + 10 gain against an 11 requirement
	// (10% of the 110 notional).
	if want := num.BN(110*constants.QuotePrecision); initial.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("initial collateral = %s, want %s", initial.TotalCollateral, want)
	}
	if want := num.BN(11*constants.QuotePrecision); initial.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("initial requirement = %s, want %s", initial.MarginRequirement, want)
	}
	if want := num.BN(110*constants.QuotePrecision); initial.TotalPerpLiabilityValue.Cmp(want) != 0 {
		t.Errorf("perp liability value = %s, want %s", initial.TotalPerpLiabilityValue, want)
	}
	if initial.NumPerpLiabilities != 1 {
		t.Errorf("perp liabilities = %d, want 1", initial.NumPerpLiabilities)
	}

	maintenance, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeMaintenance})
	if err != nil {
		t.Fatalf("Calculate maintenance: %v", err)
	}
	// Positive pnl haircuts to 95% outside initial; the ratio halves.
	if want := num.BN(109_500_000); maintenance.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("maintenance collateral = %s, want %s", maintenance.TotalCollateral, want)
	}
	if want := num.BN(5_500_000); maintenance.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("maintenance requirement = %s, want %s", maintenance.MarginRequirement, want)
	}
	if initial.MarginRequirement.Cmp(maintenance.MarginRequirement) <= 0 {
		t.Error("initial requirement not above maintenance")
	}
}

func TestCalculateFillModeFollowsRisk(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	depositQuote(user, 100)
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	oracles := perpOracles(testutil.ValidOracle(110*constants.PricePrecision))

	increasing, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeFill, RiskIncreasing: true})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	reducing, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeFill})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if want := num.BN(11*constants.QuotePrecision); increasing.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("risk-increasing fill requirement = %s, want initial %s", increasing.MarginRequirement, want)
	}
	if want := num.BN(5_500_000); reducing.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("risk-reducing fill requirement = %s, want maintenance %s", reducing.MarginRequirement, want)
	}
}

func TestCalculateSpotBorrow(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	depositQuote(user, 2000)

	borrow := user.GetOrCreateSpotPosition(1)
	borrow.BalanceType = state.BalanceTypeBorrow
	borrow.ScaledBalance = num.BN(10*constants.SpotBalancePrecision)

	oracles := margin.OracleSet{
		Spot: map[uint16]*oracle.PriceData{1: testutil.ValidOracle(100*constants.PricePrecision)},
	}

	initial, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// $1000 borrowed at the 120% initial liability weight.
	if want := num.BN(1200*constants.QuotePrecision); initial.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("initial requirement = %s, want %s", initial.MarginRequirement, want)
	}
	if want := num.BN(1000*constants.QuotePrecision); initial.TotalSpotLiabilityValue.Cmp(want) != 0 {
		t.Errorf("spot liability value = %s, want %s", initial.TotalSpotLiabilityValue, want)
	}
	if initial.NumSpotLiabilities != 1 {
		t.Errorf("spot liabilities = %d, want 1", initial.NumSpotLiabilities)
	}
	if !initial.MeetsRequirement() {
		t.Error("covered borrow fails margin")
	}

	maintenance, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeMaintenance})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if want := num.BN(1100*constants.QuotePrecision); maintenance.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("maintenance requirement = %s, want %s", maintenance.MarginRequirement, want)
	}
}

func TestCalculateSpotDepositWeights(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)

	deposit := user.GetOrCreateSpotPosition(1)
	deposit.ScaledBalance = num.BN(100*constants.SpotBalancePrecision)

	oracles := margin.OracleSet{
		Spot: map[uint16]*oracle.PriceData{1: testutil.ValidOracle(100*constants.PricePrecision)},
	}

	initial, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// $10k of SOL at the 80% initial asset weight.
	if want := num.BN(8000*constants.QuotePrecision); initial.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("initial collateral = %s, want %s", initial.TotalCollateral, want)
	}
	if want := num.BN(10_000*constants.QuotePrecision); initial.TotalSpotAssetValue.Cmp(want) != 0 {
		t.Errorf("spot asset value = %s, want %s", initial.TotalSpotAssetValue, want)
	}

	maintenance, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeMaintenance})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if want := num.BN(9000*constants.QuotePrecision); maintenance.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("maintenance collateral = %s, want %s", maintenance.TotalCollateral, want)
	}
}

func TestCalculatePnLImbalanceCap(t *testing.T) {
	store := testutil.NewTestMarketStore(t)
	market, _ := store.PerpMarket(0)
	market.UnrealizedPnLMaxImbalance = num.BN(constants.QuotePrecision)
	e := margin.NewEngine(store)

	user := testutil.NewTestUser(t)
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	oracles := perpOracles(testutil.ValidOracle(110*constants.PricePrecision))

	initial, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// +10 unrealized hard-capped at 1 for initial margin.
	if want := num.BN(constants.QuotePrecision); initial.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("capped collateral = %s, want %s", initial.TotalCollateral, want)
	}

	maintenance, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeMaintenance})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// The cap does not bind maintenance; only the 95% haircut applies.
	if want := num.BN(9_500_000); maintenance.TotalCollateral.Cmp(want) != 0 {
		t.Errorf("maintenance collateral = %s, want %s", maintenance.TotalCollateral, want)
	}
}

func TestCalculateInvalidOracleStillCompletes(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	depositQuote(user, 1000)
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	calc, err := e.Calculate(user, perpOracles(testutil.StaleOracle(110*constants.PricePrecision)), margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calc.AllOraclesValid {
		t.Error("stale oracle left AllOraclesValid set")
	}
	if !calc.MeetsRequirement() {
		t.Error("calculation did not complete past the stale oracle")
	}
	if calc.CanExerciseRisk() {
		t.Error("risk gate open with an invalid oracle backing a liability")
	}
}

func TestCalculateMissingOracle(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)

	_, err := e.Calculate(user, margin.OracleSet{}, margin.Context{Mode: margin.ModeInitial})
	if !errors.Is(err, margin.ErrMissingOracle) {
		t.Errorf("error = %v, want ErrMissingOracle", err)
	}
}

func TestCalculateIsolatedTierGate(t *testing.T) {
	store := testutil.NewTestMarketStore(t)
	isolated := testutil.NewTestSpotMarket(t)
	isolated.MarketIndex = 2
	isolated.Symbol = "MEME"
	isolated.Tier = state.AssetTierIsolated
	if err := store.AddSpotMarket(isolated); err != nil {
		t.Fatalf("add isolated market: %v", err)
	}
	e := margin.NewEngine(store)

	user := testutil.NewTestUser(t)
	depositQuote(user, 10_000)
	borrow := user.GetOrCreateSpotPosition(2)
	borrow.BalanceType = state.BalanceTypeBorrow
	borrow.ScaledBalance = num.BN(constants.SpotBalancePrecision)

	oracles := margin.OracleSet{
		Perp: map[uint16]*oracle.PriceData{0: testutil.ValidOracle(100*constants.PricePrecision)},
		Spot: map[uint16]*oracle.PriceData{2: testutil.ValidOracle(100*constants.PricePrecision)},
	}

	calc, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if !calc.WithIsolatedLiability {
		t.Error("isolated borrow not flagged")
	}
	if !calc.CanExerciseRisk() {
		t.Error("sole isolated liability blocked")
	}

	// A second liability alongside the isolated one shuts the gate.
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	calc, err = e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calc.NumLiabilities() != 2 {
		t.Fatalf("liabilities = %d, want 2", calc.NumLiabilities())
	}
	if !calc.MeetsRequirement() {
		t.Fatal("well-funded account fails margin")
	}
	if calc.CanExerciseRisk() {
		t.Error("isolated liability mixed with another still exercises risk")
	}
}

func TestCalculateUserMaxMarginRatioOverride(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	user.MaxMarginRatio = 2000
	pos := user.GetOrCreatePerpPosition(0)
	pos.BaseAssetAmount = num.BN(constants.BasePrecision)
	pos.QuoteAssetAmount = num.BN(-100*constants.QuotePrecision)

	oracles := perpOracles(testutil.ValidOracle(110*constants.PricePrecision))

	initial, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	// 20% of the 110 notional under the user's stricter cap.
	if want := num.BN(22*constants.QuotePrecision); initial.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("overridden requirement = %s, want %s", initial.MarginRequirement, want)
	}

	// Maintenance ignores the override.
	maintenance, err := e.Calculate(user, oracles, margin.Context{Mode: margin.ModeMaintenance})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if want := num.BN(5_500_000); maintenance.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("maintenance requirement = %s, want %s", maintenance.MarginRequirement, want)
	}
}

func TestCalculateOpenOrderSurcharge(t *testing.T) {
	e := newTestEngine(t)
	user := testutil.NewTestUser(t)
	pos := user.GetOrCreatePerpPosition(0)
	pos.OpenOrders = 3

	calc, err := e.Calculate(user, perpOracles(testutil.ValidOracle(100*constants.PricePrecision)), margin.Context{Mode: margin.ModeInitial})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if want := num.BN(3*constants.OpenOrderMarginRequirement); calc.MarginRequirement.Cmp(want) != 0 {
		t.Errorf("order surcharge = %s, want %s", calc.MarginRequirement, want)
	}
	if calc.NumPerpLiabilities != 1 {
		t.Errorf("perp liabilities = %d, want 1 from resting orders", calc.NumPerpLiabilities)
	}
}
