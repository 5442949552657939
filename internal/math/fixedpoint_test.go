package math_test

import (
	"errors"
	"testing"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

func TestScale(t *testing.T) {
	if got := fpmath.Scale.String(); got != "1000000000000000000" {
		t.Errorf("got %s, want 1e18", got)
	}
	if got := fpmath.RateConfig.Scale().String(); got != "100000000" {
		t.Errorf("got %s, want 1e8", got)
	}
}

func TestSub_NegativeIsOverflow(t *testing.T) {
	_, err := fpmath.Sub(sdkmath.NewInt(1), sdkmath.NewInt(2))
	if !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}

	r, err := fpmath.SignedSub(sdkmath.NewInt(1), sdkmath.NewInt(2))
	if err != nil {
		t.Fatalf("signed sub: %v", err)
	}
	if r.Int64() != -1 {
		t.Errorf("got %s, want -1", r)
	}
}

func TestMul_Overflow(t *testing.T) {
	big, err := fpmath.Pow(sdkmath.NewInt(2), 200)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if _, err := fpmath.Mul(big, big); !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestMulDiv_Truncates(t *testing.T) {
	r, err := fpmath.MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(3))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if r.Int64() != 33 {
		t.Errorf("got %s, want 33", r)
	}

	if _, err := fpmath.MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt()); !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	a, _ := fpmath.Pow(sdkmath.NewInt(2), 200)
	c, _ := fpmath.Pow(sdkmath.NewInt(2), 190)
	want, _ := fpmath.Pow(sdkmath.NewInt(2), 210)

	r, err := fpmath.MulDiv(a, a, c)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if !r.Equal(want) {
		t.Errorf("got %s, want 2^210", r)
	}

	if _, err := fpmath.MulDiv(a, a, sdkmath.OneInt()); !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestMulDecTruncate_PriceFeed(t *testing.T) {
	// 2 ETH at 1234.56789012 USD (1e8 feed) = 2469.13578024 USD, truncated at 18 decimals.
	balance := fpmath.MustParse("2000000000000000000")
	rate := fpmath.RateToDec(sdkmath.NewInt(123456789012), fpmath.RateConfig)

	got, err := fpmath.MulDecTruncate(balance, rate)
	if err != nil {
		t.Fatalf("mul dec: %v", err)
	}
	if got.String() != "2469135780240000000000" {
		t.Errorf("got %s, want 2469135780240000000000", got)
	}
}

func TestToDecRoundTrip(t *testing.T) {
	v := fpmath.MustParse("330000000000000000")
	d := fpmath.ToDec(v)
	if d.String() != "0.330000000000000000" {
		t.Errorf("got %s, want 0.33", d)
	}
	if !fpmath.FromDec(d).Equal(v) {
		t.Errorf("round trip: got %s, want %s", fpmath.FromDec(d), v)
	}
}
