package math

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrArithmeticOverflow is returned when a result leaves the 256-bit range
	// of sdkmath.Int or an unsigned quantity would go negative.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrDivisionByZero is returned by Quo and MulDiv on a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int64 // Number of decimal places
}

var (
	// TokenConfig is the precision of reward tokens, reward-per-share indices and fee fractions.
	TokenConfig = DecimalConfig{DecimalPrecision: 18}
	// RateConfig is the precision of external price feeds (1e8, Chainlink style).
	RateConfig = DecimalConfig{DecimalPrecision: 8}
)

// Scale returns 10^DecimalPrecision.
func (c DecimalConfig) Scale() sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, int(c.DecimalPrecision))
}

// Scale is 10^18, the fixed-point unit used by all accumulators.
var Scale = TokenConfig.Scale()

// Zero returns a fresh zero Int.
func Zero() sdkmath.Int {
	return sdkmath.ZeroInt()
}

// OrZero replaces an uninitialised Int (e.g. from a zero-valued struct) with 0.
func OrZero(i sdkmath.Int) sdkmath.Int {
	if i.IsNil() {
		return sdkmath.ZeroInt()
	}
	return i
}

// FromUint64 converts a counter value into an Int.
func FromUint64(v uint64) sdkmath.Int {
	return sdkmath.NewIntFromUint64(v)
}

// Parse reads a base-10 integer string.
func Parse(s string) (sdkmath.Int, error) {
	i, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return i, nil
}

// MustParse is Parse for package-level constants.
func MustParse(s string) sdkmath.Int {
	i, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return i
}

// Add returns a + b.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// Sub returns a - b. A negative result is treated as an underflow.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeSub(b)
	if err != nil || r.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// SignedSub returns a - b and allows negative results.
func SignedSub(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeSub(b)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// Mul returns a * b.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	r, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, a, b)
	}
	return r, nil
}

// Quo returns a / b truncated toward zero.
func Quo(a, b sdkmath.Int) (sdkmath.Int, error) {
	if b.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	return a.Quo(b), nil
}

// MulDiv returns a * b / c truncated toward zero. The product may exceed 256
// bits; only the quotient has to fit.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	q := new(big.Int).Mul(a.BigInt(), b.BigInt())
	q.Quo(q, c.BigInt())
	if q.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, fmt.Errorf("%w: %s * %s / %s", ErrArithmeticOverflow, a, b, c)
	}
	return sdkmath.NewIntFromBigInt(q), nil
}

// Pow returns x^n by repeated checked multiplication.
func Pow(x sdkmath.Int, n uint) (sdkmath.Int, error) {
	r := sdkmath.OneInt()
	for i := uint(0); i < n; i++ {
		var err error
		if r, err = Mul(r, x); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return r, nil
}

// Sum adds all values.
func Sum(values ...sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, v := range values {
		var err error
		if total, err = Add(total, v); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}

// Min returns the smaller of a and b.
func Min(a, b sdkmath.Int) sdkmath.Int {
	return sdkmath.MinInt(a, b)
}

// ToDec interprets a Scale-denominated Int as an 18-decimal fixed-point value.
func ToDec(scaled sdkmath.Int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromIntWithPrec(scaled, TokenConfig.DecimalPrecision)
}

// FromDec returns the Scale-denominated integer behind a fixed-point value.
func FromDec(d sdkmath.LegacyDec) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(d.BigInt())
}

// RateToDec converts an integer price reported with the given precision into a LegacyDec.
func RateToDec(rate sdkmath.Int, cfg DecimalConfig) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromIntWithPrec(rate, cfg.DecimalPrecision)
}

// MulDecTruncate returns value * d truncated to an integer.
// LegacyDec panics on overflow, so the panic is converted to ErrArithmeticOverflow.
func MulDecTruncate(value sdkmath.Int, d sdkmath.LegacyDec) (res sdkmath.Int, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = sdkmath.Int{}, fmt.Errorf("%w: %s * %s (%v)", ErrArithmeticOverflow, value, d, r)
		}
	}()
	return d.MulInt(value).TruncateInt(), nil
}

// BigInt exposes a copy of the value for encoders that need math/big.
func BigInt(i sdkmath.Int) *big.Int {
	return i.BigInt()
}
