package num

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Wide carries the sign-and-magnitude form the k-scale solver works in. The
// magnitudes stay inside 192 bits for every reachable reserve/budget range,
// so uint256 holds them without allocation churn.
type Wide struct {
	Mag *uint256.Int
	Neg bool
}

// WideFromBig converts a signed big.Int. Fails if |v| needs more than 256 bits.
func WideFromBig(v *big.Int) (Wide, error) {
	mag, overflow := uint256.FromBig(new(big.Int).Abs(v))
	if overflow {
		return Wide{}, ErrMathOverflow
	}
	return Wide{Mag: mag, Neg: v.Sign() < 0}, nil
}

// WideFromInt64 converts a signed int64.
func WideFromInt64(v int64) Wide {
	if v < 0 {
		return Wide{Mag: uint256.NewInt(uint64(-v)), Neg: true}
	}
	return Wide{Mag: uint256.NewInt(uint64(v)), Neg: false}
}

// Sign returns -1, 0, or +1.
func (w Wide) Sign() int {
	if w.Mag.IsZero() {
		return 0
	}
	if w.Neg {
		return -1
	}
	return 1
}

// Big converts back to a signed big.Int.
func (w Wide) Big() *big.Int {
	v := w.Mag.ToBig()
	if w.Neg {
		v.Neg(v)
	}
	return v
}

// WideMul returns a * b, failing on 256-bit overflow.
func WideMul(a, b Wide) (Wide, error) {
	mag, overflow := new(uint256.Int).MulOverflow(a.Mag, b.Mag)
	if overflow {
		return Wide{}, ErrMathOverflow
	}
	return Wide{Mag: mag, Neg: a.Neg != b.Neg && !mag.IsZero()}, nil
}

// WideAdd returns a + b in sign-and-magnitude form.
func WideAdd(a, b Wide) (Wide, error) {
	if a.Neg == b.Neg {
		mag, carry := new(uint256.Int).AddOverflow(a.Mag, b.Mag)
		if carry {
			return Wide{}, ErrMathOverflow
		}
		return Wide{Mag: mag, Neg: a.Neg && !mag.IsZero()}, nil
	}
	// Opposite signs: subtract smaller magnitude from larger.
	if a.Mag.Cmp(b.Mag) >= 0 {
		mag := new(uint256.Int).Sub(a.Mag, b.Mag)
		return Wide{Mag: mag, Neg: a.Neg && !mag.IsZero()}, nil
	}
	mag := new(uint256.Int).Sub(b.Mag, a.Mag)
	return Wide{Mag: mag, Neg: b.Neg && !mag.IsZero()}, nil
}

// WideSub returns a - b.
func WideSub(a, b Wide) (Wide, error) {
	return WideAdd(a, Wide{Mag: b.Mag, Neg: !b.Neg})
}

// WideDiv returns a / b with magnitude floor division (truncation toward zero
// on the signed value).
func WideDiv(a, b Wide) (Wide, error) {
	if b.Mag.IsZero() {
		return Wide{}, ErrMathOverflow
	}
	mag := new(uint256.Int).Div(a.Mag, b.Mag)
	return Wide{Mag: mag, Neg: a.Neg != b.Neg && !mag.IsZero()}, nil
}
