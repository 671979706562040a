package amm_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/drift-labs/protocol-v2-sub006/internal/amm"
	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/testutil"
)

// newShortInventoryAMM seeds a 500-depth curve carrying ~12.3 base of user
// net short exposure.
func newShortInventoryAMM(t *testing.T) *amm.AMM {
	t.Helper()
	a, err := amm.New(amm.Config{
		BaseAssetReserve:  num.BN(500*constants.AMMReservePrecision),
		QuoteAssetReserve: num.BN(500*constants.AMMReservePrecision),
		PegMultiplier:     num.BN(100*constants.PegPrecision),
		OrderStepSize:     10_000_000,
		OrderTickSize:     1000,
	})
	if err != nil {
		t.Fatalf("seed amm: %v", err)
	}
	if err := a.MovePrice(num.BN(512_295_081_967), num.BN(488_000_000_000), num.BN(500*constants.AMMReservePrecision)); err != nil {
		t.Fatalf("move price: %v", err)
	}
	a.BaseAssetAmountWithAmm = num.BN(-12_295_081_967)
	return a
}

func TestGetUpdateKResultScalesReserves(t *testing.T) {
	a := newShortInventoryAMM(t)

	update, err := a.GetUpdateKResult(num.BN(501*constants.AMMReservePrecision), true)
	if err != nil {
		t.Fatalf("GetUpdateKResult: %v", err)
	}
	if want := num.BN(513_319_672_130); update.BaseAssetReserve.Cmp(want) != 0 {
		t.Errorf("scaled base reserve = %s, want %s", update.BaseAssetReserve, want)
	}
	if want := num.BN(488_976_000_001); update.QuoteAssetReserve.Cmp(want) != 0 {
		t.Errorf("scaled quote reserve = %s, want %s", update.QuoteAssetReserve, want)
	}
}

func TestGetUpdateKResultBoundedDecrease(t *testing.T) {
	a := testutil.NewTestAMM(t)

	// 3% drop exceeds the 250 bps ceiling.
	_, err := a.GetUpdateKResult(num.BN(97*constants.AMMReservePrecision), true)
	if !errors.Is(err, amm.ErrInvariantViolation) {
		t.Errorf("bounded decrease error = %v, want ErrInvariantViolation", err)
	}

	// The same drop passes unbounded.
	if _, err := a.GetUpdateKResult(num.BN(97*constants.AMMReservePrecision), false); err != nil {
		t.Errorf("unbounded decrease: %v", err)
	}
}

func TestGetUpdateKResultExposureRule(t *testing.T) {
	a := testutil.NewTestAMM(t)
	a.BaseAssetAmountWithAmm = num.BN(-40*constants.BasePrecision)

	// A 1% drop is inside the bps bound, but 40 base exposure exceeds a
	// third of the 99 target depth.
	_, err := a.GetUpdateKResult(num.BN(99*constants.AMMReservePrecision), true)
	if !errors.Is(err, amm.ErrInvariantViolation) {
		t.Errorf("exposure rule error = %v, want ErrInvariantViolation", err)
	}
}

func TestGetUpdateKResultRejectsNonPositive(t *testing.T) {
	a := testutil.NewTestAMM(t)
	if _, err := a.GetUpdateKResult(num.BN(0), true); !errors.Is(err, amm.ErrInvalidInput) {
		t.Errorf("zero sqrt_k error = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateKChargesCost(t *testing.T) {
	a := newShortInventoryAMM(t)

	update, err := a.GetUpdateKResult(num.BN(501*constants.AMMReservePrecision), true)
	if err != nil {
		t.Fatalf("GetUpdateKResult: %v", err)
	}
	cost, err := a.UpdateK(update)
	if err != nil {
		t.Fatalf("UpdateK: %v", err)
	}
	// Deepening against net short inventory recoups less on close: a
	// positive cost, charged to the fee pool.
	if cost.Sign() <= 0 {
		t.Errorf("deepen cost = %s, want > 0", cost)
	}
	if a.TotalFeeMinusDistributions.Cmp(num.Neg(cost)) != 0 {
		t.Errorf("retained fees = %s, want %s", a.TotalFeeMinusDistributions, num.Neg(cost))
	}
	if a.SqrtK.Cmp(num.BN(501*constants.AMMReservePrecision)) != 0 {
		t.Errorf("sqrt_k = %s, want %d", a.SqrtK, 501*constants.AMMReservePrecision)
	}
	if err := a.ValidateInvariant(); err != nil {
		t.Errorf("invariant after update: %v", err)
	}
}

func TestAdjustKCostFlatCurveIsFree(t *testing.T) {
	a := testutil.NewTestAMM(t)
	update, err := a.GetUpdateKResult(num.BN(101*constants.AMMReservePrecision), true)
	if err != nil {
		t.Fatalf("GetUpdateKResult: %v", err)
	}
	cost, err := a.AdjustKCost(update)
	if err != nil {
		t.Fatalf("AdjustKCost: %v", err)
	}
	if cost.Sign() != 0 {
		t.Errorf("flat-curve cost = %s, want 0", cost)
	}
}

func TestCalculateBudgetedKScaleDegenerateInputs(t *testing.T) {
	a := newShortInventoryAMM(t)

	if _, _, err := a.CalculateBudgetedKScale(num.BN(1), constants.PercentagePrecision-1, 1); !errors.Is(err, amm.ErrInvalidInput) {
		t.Errorf("upper bound below 1.0 error = %v, want ErrInvalidInput", err)
	}
	if _, _, err := a.CalculateBudgetedKScale(num.BN(1), constants.PercentagePrecision, 0); !errors.Is(err, amm.ErrInvalidInput) {
		t.Errorf("zero lower bound error = %v, want ErrInvalidInput", err)
	}

	numer, denom, err := a.CalculateBudgetedKScale(num.BN(0), 1_020_000, 980_000)
	if err != nil {
		t.Fatalf("zero budget: %v", err)
	}
	if numer.Cmp(denom) != 0 || numer.Cmp(num.BN(constants.PercentagePrecision)) != 0 {
		t.Errorf("zero budget scale = %s/%s, want 1.0", numer, denom)
	}

	flat := testutil.NewTestAMM(t)
	numer, denom, err = flat.CalculateBudgetedKScale(num.BN(1_000_000_000), 1_020_000, 980_000)
	if err != nil {
		t.Fatalf("flat curve: %v", err)
	}
	if numer.Cmp(denom) != 0 {
		t.Errorf("flat curve scale = %s/%s, want 1.0", numer, denom)
	}
}

func TestApplyBudgetedKStaysWithinBudget(t *testing.T) {
	a := newShortInventoryAMM(t)
	budget := num.BN(1000*constants.QuotePrecision)

	cost, newSqrtK, err := a.ApplyBudgetedK(budget, 1_020_000, 980_000)
	if err != nil {
		t.Fatalf("ApplyBudgetedK: %v", err)
	}
	if cost.Cmp(budget) > 0 {
		t.Errorf("realized cost %s exceeds budget %s", cost, budget)
	}
	// Spending deepens the curve against its short inventory.
	if newSqrtK.Cmp(num.BN(500*constants.AMMReservePrecision)) < 0 {
		t.Errorf("new sqrt_k = %s, want >= seed depth", newSqrtK)
	}
	if a.SqrtK.Cmp(newSqrtK) != 0 {
		t.Errorf("committed sqrt_k %s != returned %s", a.SqrtK, newSqrtK)
	}
	if err := a.ValidateInvariant(); err != nil {
		t.Errorf("invariant after budgeted update: %v", err)
	}
}

func TestApplyBudgetedKRecoupShrinks(t *testing.T) {
	a := newShortInventoryAMM(t)

	// A negative budget demands recouping: the solve shrinks depth, inside
	// the bounded-decrease and lower-bound limits.
	cost, newSqrtK, err := a.ApplyBudgetedK(num.BN(-100*constants.QuotePrecision), 1_020_000, 990_000)
	if err != nil {
		t.Fatalf("ApplyBudgetedK: %v", err)
	}
	if newSqrtK.Cmp(num.BN(500*constants.AMMReservePrecision)) >= 0 {
		t.Errorf("new sqrt_k = %s, want shrink below seed depth", newSqrtK)
	}
	if cost.Sign() >= 0 {
		t.Errorf("recoup cost = %s, want < 0", cost)
	}
	var negBudget big.Int
	negBudget.SetInt64(-100*constants.QuotePrecision)
	if cost.Cmp(&negBudget) < 0 {
		t.Errorf("recouped %s past the demanded budget %s", cost, &negBudget)
	}
}
