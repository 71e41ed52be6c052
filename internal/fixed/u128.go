// Package fixed implements the 128-bit fixed-point arithmetic the market
// engine runs on. Factors and USD values carry 20 decimal places
// (Unit = 10^20); token amounts are plain uint64 atomic units.
//
// All fallible operations return an explicit error instead of wrapping:
// the engine treats any overflow as fatal to the action.
package fixed

import (
	"encoding/binary"
	"errors"
	"math/big"
	"math/bits"
	"sync"
)

// Decimals is the fixed-point precision of factors and USD values.
const Decimals = 20

var (
	ErrOverflow             = errors.New("fixed: overflow")
	ErrUnderflow            = errors.New("fixed: underflow")
	ErrDivisionByZero       = errors.New("fixed: division by zero")
	ErrConversionOutOfRange = errors.New("fixed: conversion out of range")
)

// U128 is an unsigned 128-bit integer with value semantics.
type U128 struct {
	Hi, Lo uint64
}

// I128 is a signed 128-bit delta in sign-magnitude form. The zero value is
// zero; a zero magnitude is never negative.
type I128 struct {
	Neg bool
	Mag U128
}

var (
	// Zero is the U128 zero value.
	Zero = U128{}

	// Unit is 10^20, the fixed-point representation of 1.0.
	Unit = U128{Hi: 0x5, Lo: 0x6bc75e2d63100000}
)

// Intermediate products need up to 256 bits; big.Int instances are pooled
// the same way the quantity math pools them.
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

var maxU128 = func() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 128)
	return v.Sub(v, big.NewInt(1))
}()

// FromU64 widens a token amount to U128.
func FromU64(v uint64) U128 {
	return U128{Lo: v}
}

// MustFromDecimal parses a base-10 literal. Panics on malformed input;
// intended for package-level constants and tests.
func MustFromDecimal(s string) U128 {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		panic("fixed: bad decimal literal " + s)
	}
	u, _ := fromBig(v)
	return u
}

// toBig writes u into dst and returns it.
func (u U128) toBig(dst *big.Int) *big.Int {
	dst.SetUint64(u.Hi)
	dst.Lsh(dst, 64)
	lo := getBig()
	lo.SetUint64(u.Lo)
	dst.Or(dst, lo)
	putBig(lo)
	return dst
}

// fromBig narrows v back to 128 bits.
func fromBig(v *big.Int) (U128, error) {
	if v.Sign() < 0 {
		return Zero, ErrUnderflow
	}
	if v.Cmp(maxU128) > 0 {
		return Zero, ErrOverflow
	}
	var buf [16]byte
	v.FillBytes(buf[:])
	return U128{
		Hi: binary.BigEndian.Uint64(buf[:8]),
		Lo: binary.BigEndian.Uint64(buf[8:]),
	}, nil
}

// FromBig narrows a non-negative big.Int into a U128.
func FromBig(v *big.Int) (U128, error) {
	return fromBig(v)
}

// Big returns u as a freshly allocated big.Int. Callers that need the
// pooled path should stay inside this package.
func (u U128) Big() *big.Int {
	return u.toBig(new(big.Int))
}

// IsZero reports whether u == 0.
func (u U128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// Cmp returns -1, 0 or +1.
func (u U128) Cmp(other U128) int {
	switch {
	case u.Hi < other.Hi:
		return -1
	case u.Hi > other.Hi:
		return 1
	case u.Lo < other.Lo:
		return -1
	case u.Lo > other.Lo:
		return 1
	default:
		return 0
	}
}

// U64 narrows back to a token amount.
func (u U128) U64() (uint64, error) {
	if u.Hi != 0 {
		return 0, ErrConversionOutOfRange
	}
	return u.Lo, nil
}

// Add returns u + other, failing on 128-bit overflow.
func Add(u, other U128) (U128, error) {
	lo, carry := bits.Add64(u.Lo, other.Lo, 0)
	hi, carry := bits.Add64(u.Hi, other.Hi, carry)
	if carry != 0 {
		return Zero, ErrOverflow
	}
	return U128{Hi: hi, Lo: lo}, nil
}

// Sub returns u - other, failing on underflow.
func Sub(u, other U128) (U128, error) {
	lo, borrow := bits.Sub64(u.Lo, other.Lo, 0)
	hi, borrow := bits.Sub64(u.Hi, other.Hi, borrow)
	if borrow != 0 {
		return Zero, ErrUnderflow
	}
	return U128{Hi: hi, Lo: lo}, nil
}

// Mul returns u * other, failing on 128-bit overflow.
func Mul(u, other U128) (U128, error) {
	a := getBig()
	b := getBig()
	u.toBig(a)
	other.toBig(b)
	a.Mul(a, b)
	res, err := fromBig(a)
	putBig(a)
	putBig(b)
	return res, err
}

// MulDiv returns floor(a * b / c) with a 256-bit intermediate.
func MulDiv(a, b, c U128) (U128, error) {
	if c.IsZero() {
		return Zero, ErrDivisionByZero
	}
	x := getBig()
	y := getBig()
	d := getBig()
	a.toBig(x)
	b.toBig(y)
	c.toBig(d)
	x.Mul(x, y)
	x.Quo(x, d)
	res, err := fromBig(x)
	putBig(x)
	putBig(y)
	putBig(d)
	return res, err
}

// MulDivCeil returns ceil(a * b / c).
func MulDivCeil(a, b, c U128) (U128, error) {
	if c.IsZero() {
		return Zero, ErrDivisionByZero
	}
	x := getBig()
	y := getBig()
	d := getBig()
	r := getBig()
	a.toBig(x)
	b.toBig(y)
	c.toBig(d)
	x.Mul(x, y)
	x.QuoRem(x, d, r)
	if r.Sign() != 0 {
		x.Add(x, oneBig)
	}
	res, err := fromBig(x)
	putBig(x)
	putBig(y)
	putBig(d)
	putBig(r)
	return res, err
}

var oneBig = big.NewInt(1)

// Div returns floor(a / b).
func Div(a, b U128) (U128, error) {
	return MulDiv(a, U128{Lo: 1}, b)
}

// DivCeil returns ceil(a / b), the round-up division the impact and
// size-delta conversions use against the traders' favor.
func DivCeil(a, b U128) (U128, error) {
	return MulDivCeil(a, U128{Lo: 1}, b)
}

// AddSigned applies a signed delta to an unsigned amount. This is the sole
// mutation primitive pools are built on.
func AddSigned(u U128, d I128) (U128, error) {
	if d.Neg {
		return Sub(u, d.Mag)
	}
	return Add(u, d.Mag)
}

// NewI128 builds a normalized signed value (zero is never negative).
func NewI128(neg bool, mag U128) I128 {
	if mag.IsZero() {
		return I128{}
	}
	return I128{Neg: neg, Mag: mag}
}

// I128FromU64 widens an amount into a positive delta.
func I128FromU64(v uint64) I128 {
	return NewI128(false, FromU64(v))
}

// Negated returns -d.
func (d I128) Negated() I128 {
	return NewI128(!d.Neg, d.Mag)
}

// IsZero reports whether d == 0.
func (d I128) IsZero() bool {
	return d.Mag.IsZero()
}

// Sign returns -1, 0 or +1.
func (d I128) Sign() int {
	if d.Mag.IsZero() {
		return 0
	}
	if d.Neg {
		return -1
	}
	return 1
}

// AddI returns a + b in sign-magnitude form.
func AddI(a, b I128) (I128, error) {
	if a.Neg == b.Neg {
		mag, err := Add(a.Mag, b.Mag)
		if err != nil {
			return I128{}, err
		}
		return NewI128(a.Neg, mag), nil
	}
	// Opposite signs: subtract the smaller magnitude from the larger.
	if a.Mag.Cmp(b.Mag) >= 0 {
		mag, err := Sub(a.Mag, b.Mag)
		if err != nil {
			return I128{}, err
		}
		return NewI128(a.Neg, mag), nil
	}
	mag, err := Sub(b.Mag, a.Mag)
	if err != nil {
		return I128{}, err
	}
	return NewI128(b.Neg, mag), nil
}

// MulSigned returns a * b for an unsigned operand and a signed one.
func MulSigned(a U128, b I128) (I128, error) {
	mag, err := Mul(a, b.Mag)
	if err != nil {
		return I128{}, err
	}
	return NewI128(b.Neg, mag), nil
}
