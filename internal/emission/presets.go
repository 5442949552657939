package emission

import (
	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

const (
	// V1Period is the four-piece public distribution length in blocks.
	V1Period uint64 = 345_600
	// V1ExtendedPeriod is the same schedule stretched to 6,500 blocks per day.
	V1ExtendedPeriod uint64 = 390_000
	// LiquidityMiningPeriod is three years of 6,500 blocks per day.
	LiquidityMiningPeriod uint64 = 6_500 * 365 * 3
	// V2Period is one year of 6,500 blocks per day.
	V2Period uint64 = 6_500 * 365
)

var (
	// V1TotalSupply is 8,750,000 tokens.
	V1TotalSupply = fpmath.MustParse("8750000000000000000000000")
	// LiquidityMiningTotalSupply is the LP incentive ceiling.
	LiquidityMiningTotalSupply = fpmath.MustParse("445439067980500266694036")
	// V2TotalSupply is 750,000 tokens.
	V2TotalSupply = fpmath.MustParse("750000000000000000000000")
)

func plus(coeff string, power uint, divisor int64) Term {
	return Term{Coefficient: fpmath.MustParse(coeff), Power: power, Divisor: sdkmath.NewInt(divisor)}
}

func minus(coeff string, power uint, divisor int64) Term {
	t := plus(coeff, power, divisor)
	t.Negative = true
	return t
}

// V1Distribution is the four-piece quadratic schedule over 345,600 units.
func V1Distribution(startUnit uint64) *Curve {
	return mustCurve(New("v1", startUnit, V1Period, V1TotalSupply, []Piece{
		{From: 0, To: 86_400, Terms: []Term{
			plus("1625000000000000000000", 2, 3_483_648),
			plus("18125000000000000000000", 1, 3_024),
		}},
		{From: 86_400, To: 172_800, Terms: []Term{
			plus("45625000000000000000000", 1, 756),
			minus("125000000000000000000", 2, 870_912),
			minus("1000000000000000000000000", 0, 7),
		}},
		{From: 172_800, To: 259_200, Terms: []Term{
			plus("125000000000000000000", 2, 3_483_648),
			plus("39250000000000000000000000", 0, 7),
			minus("11875000000000000000000", 1, 3_024),
		}},
		{From: 259_200, To: V1Period, Terms: []Term{
			plus("125000000000000000000", 2, 3_483_648),
			plus("34750000000000000000000000", 0, 7),
			minus("625000000000000000000", 1, 432),
		}},
	}))
}

// V1Extended is the V1 schedule with its day length moved from 5,760 to 6,500 units.
func V1Extended(startUnit uint64) *Curve {
	return mustCurve(New("v1-extended", startUnit, V1ExtendedPeriod, V1TotalSupply, []Piece{
		{From: 0, To: 97_500, Terms: []Term{
			plus("100000000000000000", 2, 273),
			plus("1450000000000000000000", 1, 273),
		}},
		{From: 97_500, To: 195_000, Terms: []Term{
			plus("14600000000000000000000", 1, 273),
			minus("400000000000000000", 2, 3_549),
			minus("1000000000000000000000000", 0, 7),
		}},
		{From: 195_000, To: 292_500, Terms: []Term{
			plus("100000000000000000", 2, 3_549),
			plus("39250000000000000000000000", 0, 7),
			minus("950000000000000000000", 1, 273),
		}},
		{From: 292_500, To: V1ExtendedPeriod, Terms: []Term{
			plus("100000000000000000", 2, 3_549),
			plus("34750000000000000000000000", 0, 7),
			minus("50000000000000000000", 1, 39),
		}},
	}))
}

// LiquidityMining is the linear LP staking schedule.
func LiquidityMining(startUnit uint64) *Curve {
	return mustCurve(Linear("liquidity-mining", startUnit, LiquidityMiningPeriod, LiquidityMiningTotalSupply))
}

// V2Distribution is the linear schedule that replaces V1 after cutover.
func V2Distribution(startUnit uint64) *Curve {
	return mustCurve(Linear("v2", startUnit, V2Period, V2TotalSupply))
}

// Preset returns a built-in curve by name.
func Preset(name string, startUnit uint64) (*Curve, bool) {
	switch name {
	case "v1":
		return V1Distribution(startUnit), true
	case "v1-extended":
		return V1Extended(startUnit), true
	case "liquidity-mining":
		return LiquidityMining(startUnit), true
	case "v2":
		return V2Distribution(startUnit), true
	}
	return nil, false
}

// PresetNames lists the built-in curves.
func PresetNames() []string {
	return []string{"v1", "v1-extended", "liquidity-mining", "v2"}
}

func mustCurve(c *Curve, err error) *Curve {
	if err != nil {
		panic(err)
	}
	return c
}
