package margin

import (
	"fmt"
	"math"
	"math/big"

	"github.com/drift-labs/protocol-v2-sub006/internal/constants"
	"github.com/drift-labs/protocol-v2-sub006/internal/num"
	"github.com/drift-labs/protocol-v2-sub006/internal/state"
)

// MaxRepresentableTokenAmount is returned when the withdrawal market cannot
// constrain free collateral at all.
func MaxRepresentableTokenAmount() *big.Int {
	return new(big.Int).SetUint64(math.MaxUint64)
}

// MaxWithdrawable returns the largest token amount of the given spot market
// the user could withdraw and still meet initial margin. An asset with zero
// initial weight imposes no ceiling, so the maximum representable amount
// comes back. The caller still caps the result by the user's actual balance.
func (e *Engine) MaxWithdrawable(user *state.User, marketIndex uint16, oracles OracleSet) (*big.Int, error) {
	market, ok := e.Markets.SpotMarket(marketIndex)
	if !ok {
		return nil, fmt.Errorf("%w: spot %d", ErrUnknownMarket, marketIndex)
	}

	size := num.BN(0)
	if pos, ok := user.SpotPosition(marketIndex); ok {
		tokens, err := pos.SignedTokenAmount(market)
		if err != nil {
			return nil, err
		}
		if tokens.Sign() > 0 {
			size = tokens
		}
	}
	weight, err := market.AssetWeight(size, true)
	if err != nil {
		return nil, err
	}
	if weight == 0 {
		return MaxRepresentableTokenAmount(), nil
	}

	calc, err := e.Calculate(user, oracles, Context{Mode: ModeInitial})
	if err != nil {
		return nil, err
	}
	free := calc.FreeCollateral()
	if free.Sign() == 0 {
		return num.BN(0), nil
	}

	price := num.BN(constants.PricePrecision)
	if !market.IsQuoteMarket() {
		data, ok := oracles.Spot[marketIndex]
		if !ok || data == nil {
			return nil, fmt.Errorf("%w: spot %d", ErrMissingOracle, marketIndex)
		}
		price = market.WorstOraclePrice(data, false)
	}

	tokens, err := num.Div(
		num.Mul(free, num.BN(constants.SpotBalancePrecision), num.BN(constants.SpotWeightPrecision)),
		num.Mul(num.BN(weight), price),
	)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}
