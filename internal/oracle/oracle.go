package oracle

import (
	"errors"
	"fmt"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

// ErrOracleUnavailable is returned when a pool balance or rate cannot be read.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// PoolWeightOracle reports the numbers reward weighting is derived from.
// Implementations may fail; callers must not fall back to stale values.
type PoolWeightOracle interface {
	// FundBalance returns the pool's fund balance in its native unit.
	FundBalance(poolID string) (sdkmath.Int, error)
	// ConversionRate returns the factor that converts the native unit into
	// the common weighting unit.
	ConversionRate(poolID string) (sdkmath.LegacyDec, error)
}

// Converter turns a native fund balance into the common weighting unit.
type Converter interface {
	Convert(o PoolWeightOracle, poolID string, balance sdkmath.Int) (sdkmath.Int, error)
}

// Identity is the converter for pools already denominated in the common unit.
type Identity struct{}

func (Identity) Convert(_ PoolWeightOracle, _ string, balance sdkmath.Int) (sdkmath.Int, error) {
	return balance, nil
}

// PriceConverted multiplies the balance by the pool's conversion rate,
// truncating toward zero (balance * price / 1e8 for a 1e8 price feed).
type PriceConverted struct{}

func (PriceConverted) Convert(o PoolWeightOracle, poolID string, balance sdkmath.Int) (sdkmath.Int, error) {
	rate, err := o.ConversionRate(poolID)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if rate.IsNil() || rate.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: pool %s has invalid rate", ErrOracleUnavailable, poolID)
	}
	return fpmath.MulDecTruncate(balance, rate)
}

// ConverterByName resolves the converter named in configuration.
func ConverterByName(name string) (Converter, error) {
	switch name {
	case "", "identity":
		return Identity{}, nil
	case "price":
		return PriceConverted{}, nil
	}
	return nil, fmt.Errorf("unknown weight converter %q", name)
}

// Weight reads a pool's fund balance and converts it to the common unit.
func Weight(o PoolWeightOracle, poolID string, conv Converter) (sdkmath.Int, error) {
	bal, err := o.FundBalance(poolID)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if bal.IsNil() || bal.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: pool %s has invalid balance", ErrOracleUnavailable, poolID)
	}
	if conv == nil {
		conv = Identity{}
	}
	return conv.Convert(o, poolID, bal)
}
