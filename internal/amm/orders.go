package amm

import (
	"fmt"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/num"
)

// StandardizeBaseAmount floors a base amount to a step-size multiple.
func StandardizeBaseAmount(amount *big.Int, stepSize int64) (*big.Int, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("%w: zero order step size", ErrInvalidInput)
	}
	rem := new(big.Int).Mod(amount, num.BN(stepSize))
	return num.Sub(amount, rem), nil
}

// MaxFillReserveFraction limits a single fill to this fraction of the base
// reserve.
const MaxFillReserveFraction = 100

// MaxBaseAssetAmountFillable bounds a single order in the given direction by
// the reserve fraction cap and the depth left before the concentration
// bounds, standardized to the step size.
func (a *AMM) MaxBaseAssetAmountFillable(direction PositionDirection) (*big.Int, error) {
	maxFill, err := num.Div(a.BaseAssetReserve, num.BN(MaxFillReserveFraction))
	if err != nil {
		return nil, err
	}
	var sideDepth *big.Int
	if direction == Long {
		sideDepth = num.Max(num.BN(0), num.Sub(a.BaseAssetReserve, a.MinBaseAssetReserve))
	} else {
		sideDepth = num.Max(num.BN(0), num.Sub(a.MaxBaseAssetReserve, a.BaseAssetReserve))
	}
	return StandardizeBaseAmount(num.Min(maxFill, sideDepth), a.OrderStepSize)
}
