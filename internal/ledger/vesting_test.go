package ledger_test

import (
	"errors"
	"testing"

	"rewardengine/internal/fee"
	"rewardengine/internal/ledger"
	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const vestingStart = 1_600_000_000

func TestVestingV1_PrivateFee(t *testing.T) {
	l := ledger.PrivateVestingV1(vestingStart, zerolog.Nop())
	alice := uuid.New()
	allocation := fpmath.MustParse("1000000000000000000")
	if err := l.SetAllocation(alice, allocation); err != nil {
		t.Fatalf("set allocation: %v", err)
	}

	got, err := l.GetUnclaimed(alice, vestingStart)
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if !got.Equal(allocation) {
		t.Errorf("unclaimed at start: got %s, want %s", got, allocation)
	}

	third := allocation.QuoRaw(3)
	res, err := l.Claim(alice, third, vestingStart)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Net.IsZero() || !res.Fee.Equal(third) {
		t.Errorf("claim at start: got net=%s fee=%s, want everything as fee", res.Net, res.Fee)
	}

	got, _ = l.GetUnclaimed(alice, vestingStart)
	if got.String() != "666666666666666667" {
		t.Errorf("unclaimed after claim: got %s, want 666666666666666667", got)
	}

	res, err = l.ClaimAll(alice, vestingStart+fee.PrivateVestingPeriod)
	if err != nil {
		t.Fatalf("claim all: %v", err)
	}
	if res.Net.String() != "666666666666666667" || !res.Fee.IsZero() {
		t.Errorf("claim at end: got net=%s fee=%s", res.Net, res.Fee)
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
}

func TestVestingV2_LinearUnlock(t *testing.T) {
	l := ledger.PrivateVestingV2(vestingStart, zerolog.Nop())
	alice := uuid.New()
	if err := l.SetAllocation(alice, sdkmath.NewInt(1_000_000)); err != nil {
		t.Fatalf("set allocation: %v", err)
	}

	cases := []struct {
		unit uint64
		want int64
	}{
		{vestingStart - 1, 0},
		{vestingStart, 0},
		{vestingStart + ledger.VestingPeriodV2/4, 250_000},
		{vestingStart + ledger.VestingPeriodV2/2, 500_000},
		{vestingStart + ledger.VestingPeriodV2, 1_000_000},
		{vestingStart + 2*ledger.VestingPeriodV2, 1_000_000},
	}
	for _, tc := range cases {
		got, err := l.GetUnclaimed(alice, tc.unit)
		if err != nil {
			t.Fatalf("unit %d: %v", tc.unit, err)
		}
		if got.Int64() != tc.want {
			t.Errorf("unit %d: got %s, want %d", tc.unit, got, tc.want)
		}
	}

	// Requests above the unlocked amount are clamped; no fee applies.
	half := vestingStart + ledger.VestingPeriodV2/2
	res, err := l.Claim(alice, sdkmath.NewInt(900_000), half)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Requested.Int64() != 500_000 || !res.Net.Equal(res.Requested) {
		t.Errorf("clamped claim: got requested=%s net=%s", res.Requested, res.Net)
	}
	if _, err := l.Claim(alice, sdkmath.NewInt(1), half); !errors.Is(err, ledger.ErrInsufficientUnclaimedBalance) {
		t.Errorf("claim with nothing unlocked: got %v", err)
	}
}

func TestVesting_InconsistentAllocation(t *testing.T) {
	l := ledger.PrivateVestingV1(vestingStart, zerolog.Nop())
	alice := uuid.New()
	if err := l.SetAllocation(alice, sdkmath.NewInt(1_000)); err != nil {
		t.Fatalf("set allocation: %v", err)
	}
	if _, err := l.Claim(alice, sdkmath.NewInt(600), vestingStart); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := l.SetAllocation(alice, sdkmath.NewInt(599)); !errors.Is(err, ledger.ErrInconsistentVestingState) {
		t.Errorf("reduce below claimed: got %v", err)
	}
	total, claimed := l.Allocation(alice)
	if total.Int64() != 1_000 || claimed.Int64() != 600 {
		t.Errorf("allocation changed after rejected update: total=%s claimed=%s", total, claimed)
	}

	// Raising or keeping it at the claimed amount is fine.
	if err := l.SetAllocation(alice, sdkmath.NewInt(600)); err != nil {
		t.Errorf("reduce to claimed: %v", err)
	}
	if _, err := l.ClaimAll(alice, vestingStart); !errors.Is(err, ledger.ErrInsufficientUnclaimedBalance) {
		t.Errorf("claim all when fully claimed: got %v", err)
	}
}

func TestVesting_SnapshotRestore(t *testing.T) {
	l := ledger.PrivateVestingV1(vestingStart, zerolog.Nop())
	alice := uuid.New()
	if err := l.SetAllocation(alice, sdkmath.NewInt(10)); err != nil {
		t.Fatalf("set allocation: %v", err)
	}
	if _, err := l.Claim(alice, sdkmath.NewInt(4), vestingStart); err != nil {
		t.Fatalf("claim: %v", err)
	}

	restored := ledger.PrivateVestingV1(vestingStart, zerolog.Nop())
	if err := restored.Restore(l.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	total, claimed := restored.Allocation(alice)
	if total.Int64() != 10 || claimed.Int64() != 4 {
		t.Errorf("got total=%s claimed=%s", total, claimed)
	}

	bad := ledger.VestingLedgerState{Allocations: []ledger.AllocationState{
		{Account: alice, Total: sdkmath.NewInt(1), Claimed: sdkmath.NewInt(2)},
	}}
	if err := restored.Restore(bad); !errors.Is(err, ledger.ErrInconsistentVestingState) {
		t.Errorf("restore with claimed > total: got %v", err)
	}
}
