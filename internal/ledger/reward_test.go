package ledger_test

import (
	"encoding/json"
	"errors"
	"testing"

	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	"rewardengine/internal/ledger"
	fpmath "rewardengine/internal/math"
	"rewardengine/internal/oracle"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// linearCurve releases total/2 at unit 5 and total at unit 10.
func linearCurve(t *testing.T, total int64) *emission.Curve {
	t.Helper()
	c, err := emission.Linear("test", 0, 10, sdkmath.NewInt(total))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	return c
}

func newSinglePool(t *testing.T, board *oracle.Board, schedule *fee.Schedule) *ledger.RewardLedger {
	t.Helper()
	board.ReportBalance("stable", sdkmath.NewInt(1_000_000), 0)
	l, err := ledger.NewRewardLedger(ledger.RewardConfig{
		Name:   "v1",
		Curve:  linearCurve(t, 2_000),
		Fee:    schedule,
		Oracle: board,
		Pools:  []ledger.PoolDescriptor{{ID: "stable"}},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return l
}

func unclaimed(t *testing.T, l *ledger.RewardLedger, account uuid.UUID, now uint64) int64 {
	t.Helper()
	v, err := l.GetUnclaimed(account, now)
	if err != nil {
		t.Fatalf("GetUnclaimed: %v", err)
	}
	return v.Int64()
}

// ============================================================================
// Test: Accrual
// ============================================================================

func TestRewardLedger_TwoAccounts(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice, bob := uuid.New(), uuid.New()

	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint alice: %v", err)
	}
	if err := l.SettleGlobal(5); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := unclaimed(t, l, alice, 5); got != 1_000 {
		t.Errorf("alice after first delta: got %d, want 1000", got)
	}
	if got := unclaimed(t, l, bob, 5); got != 0 {
		t.Errorf("bob after first delta: got %d, want 0", got)
	}

	if err := l.Mint(bob, "stable", sdkmath.NewInt(100), 5); err != nil {
		t.Fatalf("mint bob: %v", err)
	}
	if err := l.SettleGlobal(10); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := unclaimed(t, l, alice, 10); got != 1_500 {
		t.Errorf("alice total: got %d, want 1500", got)
	}
	if got := unclaimed(t, l, bob, 10); got != 500 {
		t.Errorf("bob total: got %d, want 500", got)
	}
}

func TestRewardLedger_ExtraSettlementsAreNoOps(t *testing.T) {
	plain := newSinglePool(t, oracle.NewBoard(), nil)
	noisy := newSinglePool(t, oracle.NewBoard(), nil)
	alice, bob := uuid.New(), uuid.New()

	steps := []func(l *ledger.RewardLedger) error{
		func(l *ledger.RewardLedger) error { return l.Mint(alice, "stable", sdkmath.NewInt(300), 1) },
		func(l *ledger.RewardLedger) error { return l.Mint(bob, "stable", sdkmath.NewInt(700), 3) },
		func(l *ledger.RewardLedger) error { return l.Transfer(bob, alice, "stable", sdkmath.NewInt(200), 6) },
		func(l *ledger.RewardLedger) error { return l.Burn(alice, "stable", sdkmath.NewInt(500), 8) },
	}
	units := []uint64{1, 3, 6, 8}

	for i, step := range steps {
		if err := step(plain); err != nil {
			t.Fatalf("plain step %d: %v", i, err)
		}
		for k := 0; k < 3; k++ {
			if err := noisy.SettleGlobal(units[i]); err != nil {
				t.Fatalf("noisy settle %d: %v", i, err)
			}
		}
		if err := step(noisy); err != nil {
			t.Fatalf("noisy step %d: %v", i, err)
		}
		if err := noisy.SettleGlobal(units[i]); err != nil {
			t.Fatalf("noisy settle %d: %v", i, err)
		}
	}

	for _, acc := range []uuid.UUID{alice, bob} {
		a, b := unclaimed(t, plain, acc, 10), unclaimed(t, noisy, acc, 10)
		if a != b {
			t.Errorf("account %s: got %d with extra settlements, want %d", acc, b, a)
		}
	}

	before, _ := json.Marshal(noisy.Snapshot())
	if err := noisy.SettleGlobal(8); err != nil {
		t.Fatalf("settle: %v", err)
	}
	after, _ := json.Marshal(noisy.Snapshot())
	if string(before) != string(after) {
		t.Error("settling at the current unit changed state")
	}
}

func TestRewardLedger_MultiPoolWeighting(t *testing.T) {
	board := oracle.NewBoard()
	board.ReportBalance("stable", sdkmath.NewInt(3_000), 0)
	board.ReportBalance("eth", sdkmath.NewInt(1), 0)
	board.ReportRate("eth", sdkmath.LegacyNewDec(1_000), 0)

	l, err := ledger.NewRewardLedger(ledger.RewardConfig{
		Name:   "v1",
		Curve:  linearCurve(t, 8_000),
		Oracle: board,
		Pools: []ledger.PoolDescriptor{
			{ID: "stable"},
			{ID: "eth", Converter: oracle.PriceConverted{}},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	alice, bob := uuid.New(), uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(10), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(bob, "eth", sdkmath.NewInt(10), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := unclaimed(t, l, alice, 5); got != 3_000 {
		t.Errorf("stable holder: got %d, want 3000", got)
	}
	if got := unclaimed(t, l, bob, 5); got != 1_000 {
		t.Errorf("eth holder: got %d, want 1000", got)
	}

	// Weights are read at every settlement: equal pools split the second half evenly.
	if err := l.SettleGlobal(5); err != nil {
		t.Fatalf("settle: %v", err)
	}
	board.ReportBalance("stable", sdkmath.NewInt(1_000), 5)
	if got := unclaimed(t, l, alice, 10); got != 5_000 {
		t.Errorf("stable holder after reweight: got %d, want 5000", got)
	}
	if got := unclaimed(t, l, bob, 10); got != 3_000 {
		t.Errorf("eth holder after reweight: got %d, want 3000", got)
	}
}

func TestRewardLedger_TransferSettlesBothSides(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice, bob := uuid.New(), uuid.New()

	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, "stable", sdkmath.NewInt(50), 5); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := unclaimed(t, l, alice, 10); got != 1_500 {
		t.Errorf("alice: got %d, want 1500", got)
	}
	if got := unclaimed(t, l, bob, 10); got != 500 {
		t.Errorf("bob: got %d, want 500", got)
	}
	if supply, _ := l.TotalSupply("stable"); supply.Int64() != 100 {
		t.Errorf("supply: got %s, want 100", supply)
	}
}

func TestRewardLedger_ZeroSupplyAccruesNothing(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice := uuid.New()

	if err := l.SettleGlobal(5); err != nil {
		t.Fatalf("settle with no shares: %v", err)
	}
	if l.LastUpdateUnit() != 5 {
		t.Errorf("last update: got %d, want 5", l.LastUpdateUnit())
	}
	if err := l.Mint(alice, "stable", sdkmath.NewInt(1), 5); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := unclaimed(t, l, alice, 10); got != 1_000 {
		t.Errorf("alice: got %d, want only the second half (1000)", got)
	}
}

func TestRewardLedger_NoSharesNeedsNoOracle(t *testing.T) {
	l, err := ledger.NewRewardLedger(ledger.RewardConfig{
		Name:   "v1",
		Curve:  linearCurve(t, 2_000),
		Oracle: oracle.NewBoard(),
		Pools:  []ledger.PoolDescriptor{{ID: "stable"}},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	alice := uuid.New()

	if err := l.SettleGlobal(3); err != nil {
		t.Fatalf("settle with no shares and no reading: %v", err)
	}
	if l.LastUpdateUnit() != 3 {
		t.Errorf("last update: got %d, want 3", l.LastUpdateUnit())
	}
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 5); err != nil {
		t.Fatalf("first mint with no reading: %v", err)
	}
	if supply, _ := l.TotalSupply("stable"); supply.Int64() != 100 {
		t.Errorf("supply: got %s, want 100", supply)
	}

	// Once shares exist the reading is required again.
	if err := l.SettleGlobal(6); !errors.Is(err, oracle.ErrOracleUnavailable) {
		t.Errorf("settle with shares: got %v, want ErrOracleUnavailable", err)
	}
}

func TestRewardLedger_SettleAccountCreatesCheckpoint(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice := uuid.New()

	if err := l.SettleAccount(alice, 2); err != nil {
		t.Fatalf("settle account: %v", err)
	}
	accounts := l.Accounts()
	if len(accounts) != 1 || accounts[0] != alice {
		t.Fatalf("accounts: got %v, want [%s]", accounts, alice)
	}
	if got := unclaimed(t, l, alice, 10); got != 0 {
		t.Errorf("alice without shares: got %d, want 0", got)
	}
}

func TestRewardLedger_SeedShares(t *testing.T) {
	board := oracle.NewBoard()
	src := newSinglePool(t, board, nil)
	alice, bob := uuid.New(), uuid.New()
	if err := src.Mint(alice, "stable", sdkmath.NewInt(300), 0); err != nil {
		t.Fatalf("mint alice: %v", err)
	}
	if err := src.Mint(bob, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint bob: %v", err)
	}
	book := src.ShareBook()
	if len(book) != 2 {
		t.Fatalf("share book: got %d holdings, want 2", len(book))
	}

	dst := newSinglePool(t, board, nil)
	if err := dst.SeedShares(book, 5); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if supply, _ := dst.TotalSupply("stable"); supply.Int64() != 400 {
		t.Errorf("supply: got %s, want 400", supply)
	}
	if got := dst.Shares(alice, "stable"); got.Int64() != 300 {
		t.Errorf("alice shares: got %s, want 300", got)
	}
	// Only the second half of the curve is emitted after seeding.
	if got := unclaimed(t, dst, alice, 10); got != 750 {
		t.Errorf("alice: got %d, want 750", got)
	}
	if got := unclaimed(t, dst, bob, 10); got != 250 {
		t.Errorf("bob: got %d, want 250", got)
	}

	bad := []ledger.ShareHolding{{PoolID: "eth", Account: alice, Shares: sdkmath.NewInt(1)}}
	if err := dst.SeedShares(bad, 6); !errors.Is(err, ledger.ErrUnknownPool) {
		t.Errorf("unknown pool: got %v", err)
	}
	if supply, _ := dst.TotalSupply("stable"); supply.Int64() != 400 {
		t.Errorf("rejected seed changed supply to %s", supply)
	}
}

func TestRewardLedger_ShareHookErrors(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice := uuid.New()

	if err := l.Mint(alice, "nope", sdkmath.NewInt(1), 0); !errors.Is(err, ledger.ErrUnknownPool) {
		t.Errorf("unknown pool: got %v", err)
	}
	if err := l.Mint(alice, "stable", sdkmath.ZeroInt(), 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero mint: got %v", err)
	}
	if err := l.Burn(alice, "stable", sdkmath.NewInt(1), 0); !errors.Is(err, ledger.ErrInsufficientShareBalance) {
		t.Errorf("burn without shares: got %v", err)
	}
}

// ============================================================================
// Test: Oracle failure
// ============================================================================

func TestRewardLedger_OracleFailureLeavesStateUntouched(t *testing.T) {
	board := oracle.NewBoard()
	l := newSinglePool(t, board, nil)
	alice := uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.SettleGlobal(2); err != nil {
		t.Fatalf("settle: %v", err)
	}
	before, _ := json.Marshal(l.Snapshot())

	board.MarkUnavailable("stable")
	if err := l.SettleGlobal(5); !errors.Is(err, oracle.ErrOracleUnavailable) {
		t.Fatalf("settle: got %v, want ErrOracleUnavailable", err)
	}
	if err := l.Mint(alice, "stable", sdkmath.NewInt(1), 5); !errors.Is(err, oracle.ErrOracleUnavailable) {
		t.Fatalf("mint: got %v, want ErrOracleUnavailable", err)
	}
	if _, err := l.ClaimAll(alice, 5); !errors.Is(err, oracle.ErrOracleUnavailable) {
		t.Fatalf("claim: got %v, want ErrOracleUnavailable", err)
	}
	after, _ := json.Marshal(l.Snapshot())
	if string(before) != string(after) {
		t.Error("failed settlement mutated the ledger")
	}

	// Nothing was emitted since the last update, so the oracle is not needed.
	if err := l.Mint(alice, "stable", sdkmath.NewInt(1), 2); err != nil {
		t.Errorf("mint at settled unit: %v", err)
	}
}

// ============================================================================
// Test: Claims
// ============================================================================

func TestRewardLedger_ClaimWithFee(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), fee.Public(0, 10))
	alice := uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}

	res, err := l.Claim(alice, sdkmath.NewInt(1_000), 5)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Fee at the midpoint is 0.165.
	if res.Net.Int64() != 835 || res.Fee.Int64() != 165 {
		t.Errorf("got net=%s fee=%s, want 835/165", res.Net, res.Fee)
	}
	if got := unclaimed(t, l, alice, 5); got != 0 {
		t.Errorf("unclaimed after claim: got %d, want 0", got)
	}
	if got := l.Claimed(alice); got.Int64() != 1_000 {
		t.Errorf("claimed: got %s, want 1000", got)
	}

	res, err = l.ClaimAll(alice, 10)
	if err != nil {
		t.Fatalf("claim all: %v", err)
	}
	if res.Requested.Int64() != 1_000 || !res.Fee.IsZero() {
		t.Errorf("claim at end: got requested=%s fee=%s", res.Requested, res.Fee)
	}
}

func TestRewardLedger_ClaimErrors(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice, bob := uuid.New(), uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := l.Claim(alice, sdkmath.NewInt(1_001), 5); !errors.Is(err, ledger.ErrInsufficientUnclaimedBalance) {
		t.Errorf("over-claim: got %v", err)
	}
	if _, err := l.Claim(alice, sdkmath.ZeroInt(), 5); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero claim: got %v", err)
	}
	if _, err := l.ClaimAll(bob, 5); !errors.Is(err, ledger.ErrInsufficientUnclaimedBalance) {
		t.Errorf("claim with nothing owed: got %v", err)
	}
}

func TestRewardLedger_PayoutFailureCommitsNothing(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice := uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}

	boom := errors.New("transfer failed")
	_, err := l.ClaimWith(alice, nil, 5, func(ledger.ClaimResult) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want payout error", err)
	}
	if got := unclaimed(t, l, alice, 5); got != 1_000 {
		t.Errorf("unclaimed after failed payout: got %d, want 1000", got)
	}
	if !l.Claimed(alice).IsZero() {
		t.Error("failed payout recorded a claim")
	}
	if l.LastUpdateUnit() != 0 {
		t.Errorf("failed payout committed settlement to %d", l.LastUpdateUnit())
	}
}

// ============================================================================
// Test: Freeze, conservation, snapshots
// ============================================================================

func TestRewardLedger_Freeze(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice := uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Freeze(5); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if got := unclaimed(t, l, alice, 10); got != 1_000 {
		t.Errorf("frozen ledger kept accruing: got %d, want 1000", got)
	}
	if err := l.Mint(alice, "stable", sdkmath.NewInt(1), 6); !errors.Is(err, ledger.ErrLedgerFrozen) {
		t.Errorf("mint on frozen ledger: got %v", err)
	}
	if _, err := l.ClaimAll(alice, 100); err != nil {
		t.Errorf("claim on frozen ledger: %v", err)
	}
}

func TestRewardLedger_Conservation(t *testing.T) {
	l, err := ledger.NewRewardLedger(ledger.RewardConfig{
		Name:   "v1",
		Curve:  emission.V1Distribution(0),
		Oracle: boardWith(map[string]int64{"stable": 7, "yield": 3}),
		Pools:  []ledger.PoolDescriptor{{ID: "stable"}, {ID: "yield"}},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	accounts := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	pools := []string{"stable", "yield"}

	unit := uint64(0)
	for i := 0; i < 60; i++ {
		unit += 997 * uint64(i%5+1)
		acc := accounts[i%len(accounts)]
		pool := pools[i%2]
		switch i % 4 {
		case 0, 1:
			err = l.Mint(acc, pool, fpmath.MustParse("333333333333333333"), unit)
		case 2:
			err = l.Transfer(acc, accounts[(i+1)%len(accounts)], pool, sdkmath.NewInt(1), unit)
		case 3:
			_, err = l.ClaimAll(acc, unit)
		}
		if err != nil && !errors.Is(err, ledger.ErrInsufficientShareBalance) && !errors.Is(err, ledger.ErrInsufficientUnclaimedBalance) {
			t.Fatalf("step %d: %v", i, err)
		}
		if err := l.CheckConservation(unit); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	unclaimedSum, claimedSum, distributed, err := l.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	budget, _ := l.Curve().CumulativeEmitted(unit)
	total := unclaimedSum.Add(claimedSum)
	if total.GT(distributed) || distributed.GT(budget) {
		t.Errorf("owed %s, distributed %s, emitted %s", total, distributed, budget)
	}
}

func boardWith(balances map[string]int64) *oracle.Board {
	b := oracle.NewBoard()
	for id, v := range balances {
		b.ReportBalance(id, sdkmath.NewInt(v), 0)
	}
	return b
}

func TestRewardLedger_SnapshotRestore(t *testing.T) {
	board := oracle.NewBoard()
	l := newSinglePool(t, board, nil)
	alice, bob := uuid.New(), uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(bob, "stable", sdkmath.NewInt(100), 5); err != nil {
		t.Fatalf("mint: %v", err)
	}

	data, err := json.Marshal(l.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var st ledger.RewardLedgerState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := newSinglePool(t, board, nil)
	if err := restored.Restore(st); err != nil {
		t.Fatalf("restore: %v", err)
	}
	for _, acc := range []uuid.UUID{alice, bob} {
		if a, b := unclaimed(t, l, acc, 10), unclaimed(t, restored, acc, 10); a != b {
			t.Errorf("account %s: got %d after restore, want %d", acc, b, a)
		}
	}

	st.Pools = append(st.Pools, ledger.PoolState{ID: "ghost"})
	if err := restored.Restore(st); !errors.Is(err, ledger.ErrUnknownPool) {
		t.Errorf("restore with unknown pool: got %v", err)
	}
}

type fakeShares map[string]map[uuid.UUID]int64

func (f fakeShares) TotalSupply(pool string) (sdkmath.Int, error) {
	var sum int64
	for _, v := range f[pool] {
		sum += v
	}
	return sdkmath.NewInt(sum), nil
}

func (f fakeShares) BalanceOf(pool string, acc uuid.UUID) (sdkmath.Int, error) {
	return sdkmath.NewInt(f[pool][acc]), nil
}

func TestRewardLedger_Reconcile(t *testing.T) {
	l := newSinglePool(t, oracle.NewBoard(), nil)
	alice, bob := uuid.New(), uuid.New()
	if err := l.Mint(alice, "stable", sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}

	token := fakeShares{"stable": {alice: 100}}
	diffs, err := l.Reconcile(token, []uuid.UUID{alice, bob})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(diffs) != 0 {
		t.Errorf("got %d mismatches, want 0", len(diffs))
	}

	token["stable"][bob] = 5
	diffs, err = l.Reconcile(token, []uuid.UUID{alice, bob})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(diffs) != 2 {
		t.Fatalf("got %d mismatches, want total and bob", len(diffs))
	}
	if diffs[0].Account != uuid.Nil || diffs[1].Account != bob {
		t.Errorf("unexpected mismatches: %+v", diffs)
	}
}
