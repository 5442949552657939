package fee

import (
	"fmt"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

// PrivateVestingPeriod is two years in seconds.
const PrivateVestingPeriod uint64 = 2 * 365 * 86_400

var (
	// PublicInitialFee is 0.33 at 1e18 scale.
	PublicInitialFee = fpmath.MustParse("330000000000000000")
	// PrivateInitialFee is 1.0 at 1e18 scale.
	PrivateInitialFee = fpmath.Scale
)

// Schedule is a claim fee that decays linearly from InitialFee at StartUnit
// to zero at StartUnit+Period. Fractions are 1e18-scaled integers.
type Schedule struct {
	name       string
	startUnit  uint64
	period     uint64
	initialFee sdkmath.Int
}

// NewSchedule validates and returns a schedule.
func NewSchedule(name string, startUnit, period uint64, initialFee sdkmath.Int) (*Schedule, error) {
	if period == 0 {
		return nil, fmt.Errorf("fee schedule %s: zero period", name)
	}
	if initialFee.IsNil() || initialFee.IsNegative() || initialFee.GT(fpmath.Scale) {
		return nil, fmt.Errorf("fee schedule %s: initial fee must be within [0, 1e18]", name)
	}
	return &Schedule{name: name, startUnit: startUnit, period: period, initialFee: initialFee}, nil
}

// Public is the 0.33 fee tied to the reward distribution period.
func Public(startUnit, period uint64) *Schedule {
	s, err := NewSchedule("public", startUnit, period, PublicInitialFee)
	if err != nil {
		panic(err)
	}
	return s
}

// PrivateVesting is the 1.0 fee over two years.
func PrivateVesting(startUnit uint64) *Schedule {
	s, err := NewSchedule("private", startUnit, PrivateVestingPeriod, PrivateInitialFee)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schedule) Name() string            { return s.name }
func (s *Schedule) StartUnit() uint64       { return s.startUnit }
func (s *Schedule) EndUnit() uint64         { return s.startUnit + s.period }
func (s *Schedule) InitialFee() sdkmath.Int { return s.initialFee }

// Fraction returns the fee fraction at unit, 1e18-scaled. A nil schedule charges nothing.
func (s *Schedule) Fraction(unit uint64) sdkmath.Int {
	if s == nil {
		return sdkmath.ZeroInt()
	}
	if unit <= s.startUnit {
		return s.initialFee
	}
	end := s.EndUnit()
	if unit >= end {
		return sdkmath.ZeroInt()
	}
	// initialFee <= 1e18 and (end-unit) <= period < 2^64, so this cannot overflow.
	return s.initialFee.Mul(fpmath.FromUint64(end - unit)).Quo(fpmath.FromUint64(s.period))
}

// FractionDec is Fraction as an 18-decimal fixed-point value.
func (s *Schedule) FractionDec(unit uint64) sdkmath.LegacyDec {
	return fpmath.ToDec(s.Fraction(unit))
}

// Apply splits a claimed amount into what the claimant receives and the fee.
func (s *Schedule) Apply(amount sdkmath.Int, unit uint64) (net, feeAmount sdkmath.Int, err error) {
	frac := s.Fraction(unit)
	if frac.IsZero() {
		return amount, sdkmath.ZeroInt(), nil
	}
	feeAmount, err = fpmath.MulDiv(amount, frac, fpmath.Scale)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("fee %s: %w", s.name, err)
	}
	net, err = fpmath.Sub(amount, feeAmount)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("fee %s: %w", s.name, err)
	}
	return net, feeAmount, nil
}
