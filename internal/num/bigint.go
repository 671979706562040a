// Package num provides the exact integer arithmetic used by the curve and
// margin engines: signed big.Int helpers with floor-truncation division, and
// wide unsigned products for the k-scale solver. Floating point is never used
// for price or reserve math; determinism across replays depends on it.
package num

import (
	"errors"
	"math/big"
)

// ErrMathOverflow reports an arithmetic fault: overflow when narrowing a wide
// result, or division by zero. Any operation returning it must leave caller
// state untouched.
var ErrMathOverflow = errors.New("math overflow")

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// BN wraps an int64 into a fresh big.Int.
func BN(v int64) *big.Int { return big.NewInt(v) }

// Clone returns a copy of v.
func Clone(v *big.Int) *big.Int { return new(big.Int).Set(v) }

// Add returns a + b ... + rest as a new big.Int.
func Add(a, b *big.Int, rest ...*big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	for _, v := range rest {
		r.Add(r, v)
	}
	return r
}

// Sub returns a - b as a new big.Int.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// Mul returns a * b ... * rest as a new big.Int.
func Mul(a, b *big.Int, rest ...*big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	for _, v := range rest {
		r.Mul(r, v)
	}
	return r
}

// Div returns a / b truncated toward zero. Both engines only divide
// same-signed or known-positive quantities, where truncation toward zero and
// floor coincide; callers relying on signed floors use FloorDiv.
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrMathOverflow
	}
	return new(big.Int).Quo(a, b), nil
}

// FloorDiv returns a / b rounded toward negative infinity.
func FloorDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrMathOverflow
	}
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 && (a.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, one)
	}
	return q, nil
}

// CeilDiv returns a / b rounded toward positive infinity, for non-negative a, b.
func CeilDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrMathOverflow
	}
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, one)
	}
	return q, nil
}

// MulDiv returns a * b / c with the intermediate product kept wide.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	return Div(new(big.Int).Mul(a, b), c)
}

// Abs returns |v| as a new big.Int.
func Abs(v *big.Int) *big.Int { return new(big.Int).Abs(v) }

// Neg returns -v as a new big.Int.
func Neg(v *big.Int) *big.Int { return new(big.Int).Neg(v) }

// Max returns the larger of a and b (shared, not copied).
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b (shared, not copied).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return lo
	}
	if v.Cmp(hi) > 0 {
		return hi
	}
	return v
}

// Sqrt returns the integer square root of v. Negative input is an error.
func Sqrt(v *big.Int) (*big.Int, error) {
	if v.Sign() < 0 {
		return nil, ErrMathOverflow
	}
	return new(big.Int).Sqrt(v), nil
}

// SignNum returns -1, 0, or +1 matching the sign of v.
func SignNum(v *big.Int) int64 { return int64(v.Sign()) }

// ToInt64 narrows v, failing instead of wrapping.
func ToInt64(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, ErrMathOverflow
	}
	return v.Int64(), nil
}

// ToUint64 narrows v, failing on negative values or overflow.
func ToUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, ErrMathOverflow
	}
	return v.Uint64(), nil
}

// IsZero reports whether v == 0.
func IsZero(v *big.Int) bool { return v.Sign() == 0 }
