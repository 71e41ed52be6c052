package fixed

import "errors"

// ErrInvalidFactor rejects exponent factors that are not whole multiples of
// Unit. The impact exponents the engine is configured with are 1.0 or 2.0;
// fractional exponents have no exact fixed-point power.
var ErrInvalidFactor = errors.New("fixed: invalid factor")

// ApplyFactor returns floor(amount * factor / Unit).
func ApplyFactor(amount, factor U128) (U128, error) {
	return MulDiv(amount, factor, Unit)
}

// ApplyFactorCeil returns ceil(amount * factor / Unit).
func ApplyFactorCeil(amount, factor U128) (U128, error) {
	return MulDivCeil(amount, factor, Unit)
}

// Pow raises a Unit-scaled value to a Unit-scaled exponent by iterated
// mul-div. exponent must be n * Unit with n >= 0; value^0 is Unit.
func Pow(value, exponent U128) (U128, error) {
	if exponent.IsZero() {
		return Unit, nil
	}
	if exponent.Cmp(Unit) == 0 {
		return value, nil
	}
	n, err := Div(exponent, Unit)
	if err != nil {
		return Zero, err
	}
	back, err := Mul(n, Unit)
	if err != nil || back.Cmp(exponent) != 0 {
		return Zero, ErrInvalidFactor
	}
	iters, err := n.U64()
	if err != nil {
		return Zero, ErrInvalidFactor
	}
	res := value
	for i := uint64(1); i < iters; i++ {
		res, err = MulDiv(res, value, Unit)
		if err != nil {
			return Zero, err
		}
	}
	return res, nil
}

// ApplyFactors returns factor * value^exponent, the building block of the
// pool-imbalance impact curve.
func ApplyFactors(value, factor, exponent U128) (U128, error) {
	p, err := Pow(value, exponent)
	if err != nil {
		return Zero, err
	}
	return ApplyFactor(p, factor)
}

// Min returns the smaller of a and b.
func Min(a, b U128) U128 {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b U128) U128 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// DiffAbs returns |a - b| and whether a >= b.
func DiffAbs(a, b U128) (U128, bool) {
	if a.Cmp(b) >= 0 {
		d, _ := Sub(a, b)
		return d, true
	}
	d, _ := Sub(b, a)
	return d, false
}
