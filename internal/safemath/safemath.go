package safemath

import (
	"errors"
	"math/bits"
)

var (
	ErrOverflow     = errors.New("number overflow")
	ErrDivideByZero = errors.New("division by zero")
)

// Add64 returns a+b and reports whether the sum fits in 64 bits.
func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

// Sub64 returns a-b and reports whether the difference is non-negative.
func Sub64(a, b uint64) (uint64, bool) {
	v, borrow := bits.Sub64(a, b, 0)
	return v, borrow == 0
}

// Mul64 returns a*b and reports whether the product fits in 64 bits.
func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// MulDiv64 computes a*b/d with a 128-bit intermediate product and a
// truncating division. The multiply cannot overflow; the error cases are
// d == 0 and a quotient that does not fit in 64 bits.
func MulDiv64(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}
