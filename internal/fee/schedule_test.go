package fee_test

import (
	"testing"

	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
)

func TestPublic_Endpoints(t *testing.T) {
	const start = 1_000
	s := fee.Public(start, emission.V1Period)

	for _, u := range []uint64{0, start - 1, start} {
		if got := s.Fraction(u); !got.Equal(fee.PublicInitialFee) {
			t.Errorf("unit %d: got %s, want initial fee", u, got)
		}
	}
	for _, u := range []uint64{start + emission.V1Period, start + emission.V1Period + 1} {
		if got := s.Fraction(u); !got.IsZero() {
			t.Errorf("unit %d: got %s, want 0", u, got)
		}
	}

	// Halfway the fee is exactly half of 0.33.
	if got := s.Fraction(start + emission.V1Period/2); got.String() != "165000000000000000" {
		t.Errorf("midpoint: got %s, want 165000000000000000", got)
	}
}

func TestPublic_ClaimAtStartAndEnd(t *testing.T) {
	s := fee.Public(0, emission.V1Period)
	requested := fpmath.MustParse("1000000000000000000000")

	net, charged, err := s.Apply(requested, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if net.String() != "670000000000000000000" || charged.String() != "330000000000000000000" {
		t.Errorf("at start: got net=%s fee=%s", net, charged)
	}

	net, charged, err = s.Apply(requested, emission.V1Period)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !net.Equal(requested) || !charged.IsZero() {
		t.Errorf("at end: got net=%s fee=%s", net, charged)
	}
}

func TestPrivateVesting_Decay(t *testing.T) {
	const start = 1_600_000_000
	s := fee.PrivateVesting(start)

	if s.EndUnit() != start+fee.PrivateVestingPeriod {
		t.Fatalf("end: got %d", s.EndUnit())
	}

	third := fpmath.MustParse("333333333333333333")
	net, charged, err := s.Apply(third, start)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !net.IsZero() || !charged.Equal(third) {
		t.Errorf("at start: got net=%s fee=%s, want everything charged", net, charged)
	}

	// Net amount only grows as the schedule runs out.
	prev := sdkmath.ZeroInt()
	for u := uint64(start); u <= s.EndUnit(); u += fee.PrivateVestingPeriod / 16 {
		n, _, err := s.Apply(third, u)
		if err != nil {
			t.Fatalf("apply at %d: %v", u, err)
		}
		if n.LT(prev) {
			t.Fatalf("net decreased at %d", u)
		}
		prev = n
	}
	n, _, _ := s.Apply(third, s.EndUnit())
	if !n.Equal(third) {
		t.Errorf("at end: got %s, want %s", n, third)
	}
}

func TestNilSchedule_NoFee(t *testing.T) {
	var s *fee.Schedule
	amount := sdkmath.NewInt(12345)
	net, charged, err := s.Apply(amount, 42)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !net.Equal(amount) || !charged.IsZero() {
		t.Errorf("got net=%s fee=%s", net, charged)
	}
	if !s.FractionDec(0).IsZero() {
		t.Error("nil schedule should report zero fraction")
	}
}

func TestNewSchedule_Validation(t *testing.T) {
	if _, err := fee.NewSchedule("x", 0, 0, sdkmath.ZeroInt()); err == nil {
		t.Error("expected error for zero period")
	}
	if _, err := fee.NewSchedule("x", 0, 10, fpmath.Scale.AddRaw(1)); err == nil {
		t.Error("expected error for fee above 1")
	}
}
