package domain

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits every book amount is kept at.
const Scale int32 = 8

// DivHalfEven returns a/b rounded half-to-even at the given scale.
func DivHalfEven(a, b decimal.Decimal, scale int32) decimal.Decimal {
	q, r := a.QuoRem(b, scale)
	if r.IsZero() {
		return q
	}
	unit := decimal.New(1, -scale)
	if a.Sign()*b.Sign() < 0 {
		unit = unit.Neg()
	}
	// |r| is below |b|*10^-scale; compare twice the remainder against one unit of b.
	cmp := r.Abs().Mul(decimal.NewFromInt(2)).Cmp(b.Abs().Mul(decimal.New(1, -scale)))
	switch {
	case cmp > 0:
		return q.Add(unit)
	case cmp == 0 && q.Shift(scale).BigInt().Bit(0) == 1:
		return q.Add(unit)
	}
	return q
}

// DivFloor returns a/b rounded toward negative infinity at the given scale.
func DivFloor(a, b decimal.Decimal, scale int32) decimal.Decimal {
	q, r := a.QuoRem(b, scale)
	if !r.IsZero() && a.Sign()*b.Sign() < 0 {
		q = q.Sub(decimal.New(1, -scale))
	}
	return q
}

// MulHalfEven returns a*b rounded half-to-even at the given scale.
func MulHalfEven(a, b decimal.Decimal, scale int32) decimal.Decimal {
	return a.Mul(b).RoundBank(scale)
}
