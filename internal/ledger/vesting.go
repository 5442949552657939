package ledger

import (
	"fmt"
	"sync"

	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VestingPeriodV2 is 2.5 years in seconds.
const VestingPeriodV2 uint64 = 5 * 365 * 86_400 / 2

type VestingConfig struct {
	Name      string
	StartUnit uint64
	// UnlockPeriod of 0 unlocks every allocation in full immediately.
	UnlockPeriod uint64
	Fee          *fee.Schedule
	Logger       zerolog.Logger
}

type allocation struct {
	total   sdkmath.Int
	claimed sdkmath.Int
}

// VestingLedger tracks fixed allocations that unlock linearly from StartUnit
// over UnlockPeriod.
type VestingLedger struct {
	mu sync.Mutex

	name        string
	startUnit   uint64
	period      uint64
	fee         *fee.Schedule
	logger      zerolog.Logger
	allocations map[uuid.UUID]*allocation
}

func NewVestingLedger(cfg VestingConfig) *VestingLedger {
	return &VestingLedger{
		name:        cfg.Name,
		startUnit:   cfg.StartUnit,
		period:      cfg.UnlockPeriod,
		fee:         cfg.Fee,
		logger:      cfg.Logger.With().Str("ledger", cfg.Name).Logger(),
		allocations: make(map[uuid.UUID]*allocation),
	}
}

// PrivateVestingV1 unlocks immediately and charges the decaying private fee.
func PrivateVestingV1(startUnit uint64, logger zerolog.Logger) *VestingLedger {
	return NewVestingLedger(VestingConfig{
		Name:      "vesting-v1",
		StartUnit: startUnit,
		Fee:       fee.PrivateVesting(startUnit),
		Logger:    logger,
	})
}

// PrivateVestingV2 unlocks linearly over 2.5 years with no fee.
func PrivateVestingV2(startUnit uint64, logger zerolog.Logger) *VestingLedger {
	return NewVestingLedger(VestingConfig{
		Name:         "vesting-v2",
		StartUnit:    startUnit,
		UnlockPeriod: VestingPeriodV2,
		Logger:       logger,
	})
}

func (l *VestingLedger) Name() string               { return l.name }
func (l *VestingLedger) StartUnit() uint64          { return l.startUnit }
func (l *VestingLedger) UnlockPeriod() uint64       { return l.period }
func (l *VestingLedger) FeeSchedule() *fee.Schedule { return l.fee }

func (l *VestingLedger) lookup(id uuid.UUID) *allocation {
	if a, ok := l.allocations[id]; ok {
		return a
	}
	return &allocation{total: fpmath.Zero(), claimed: fpmath.Zero()}
}

// SetAllocation sets or overwrites an account's total entitlement. Reducing
// it below what was already claimed is rejected.
func (l *VestingLedger) SetAllocation(account uuid.UUID, total sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if total.IsNil() || total.IsNegative() {
		return fmt.Errorf("ledger %s: %w: allocation must not be negative", l.name, ErrInvalidAmount)
	}
	a := l.lookup(account)
	if total.LT(a.claimed) {
		return fmt.Errorf("ledger %s: %w: allocation %s below claimed %s", l.name, ErrInconsistentVestingState, total, a.claimed)
	}
	a.total = total
	l.allocations[account] = a
	l.logger.Info().Str("account", account.String()).Str("total", total.String()).Msg("allocation set")
	return nil
}

// Allocation returns the total entitlement and the pre-fee amount claimed.
func (l *VestingLedger) Allocation(account uuid.UUID) (total, claimed sdkmath.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.lookup(account)
	return a.total, a.claimed
}

func (l *VestingLedger) unlocked(total sdkmath.Int, now uint64) (sdkmath.Int, error) {
	if l.period == 0 || total.IsZero() {
		return total, nil
	}
	ramp, err := emission.Linear(l.name, l.startUnit, l.period, total)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return ramp.CumulativeEmitted(now)
}

func (l *VestingLedger) unclaimed(a *allocation, now uint64) (sdkmath.Int, error) {
	unlocked, err := l.unlocked(a.total, now)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("ledger %s: %w", l.name, err)
	}
	if unlocked.LTE(a.claimed) {
		return fpmath.Zero(), nil
	}
	return fpmath.Sub(unlocked, a.claimed)
}

// GetUnclaimed returns unlocked minus claimed, floored at zero.
func (l *VestingLedger) GetUnclaimed(account uuid.UUID, now uint64) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unclaimed(l.lookup(account), now)
}

// Claim claims up to amount; the amount is clamped to what is unlocked.
func (l *VestingLedger) Claim(account uuid.UUID, amount sdkmath.Int, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, &amount, now, nil)
}

func (l *VestingLedger) ClaimAll(account uuid.UUID, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, nil, now, nil)
}

// ClaimWith computes the claim, calls payout and commits only if payout
// succeeds. The fee comes out of what the claimant receives; the full
// requested amount counts against the allocation.
func (l *VestingLedger) ClaimWith(account uuid.UUID, amount *sdkmath.Int, now uint64, payout PayoutFunc) (ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.lookup(account)
	available, err := l.unclaimed(a, now)
	if err != nil {
		return ClaimResult{}, err
	}
	if amount != nil && !amount.IsNil() && amount.IsPositive() {
		clamped := fpmath.Min(*amount, available)
		amount = &clamped
		if clamped.IsZero() {
			return ClaimResult{}, fmt.Errorf("ledger %s: %w: nothing unlocked for %s", l.name, ErrInsufficientUnclaimedBalance, account)
		}
	}
	res, err := resolveClaim(account, amount, available, l.fee, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("ledger %s: %w", l.name, err)
	}
	claimed, err := fpmath.Add(a.claimed, res.Requested)
	if err != nil {
		return ClaimResult{}, err
	}
	if payout != nil {
		if err := payout(res); err != nil {
			return ClaimResult{}, fmt.Errorf("ledger %s: payout: %w", l.name, err)
		}
	}

	a.claimed = claimed
	l.allocations[account] = a

	l.logger.Debug().
		Str("account", account.String()).
		Str("requested", res.Requested.String()).
		Str("fee", res.Fee.String()).
		Uint64("unit", now).
		Msg("vesting claimed")
	return res, nil
}

// CheckConservation verifies no account claimed more than its allocation.
func (l *VestingLedger) CheckConservation() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range l.allocations {
		if a.claimed.GT(a.total) {
			return fmt.Errorf("ledger %s: %w: %s claimed %s of %s", l.name, ErrConservationViolated, id, a.claimed, a.total)
		}
	}
	return nil
}

// TotalClaimed is the pre-fee sum of every committed vesting claim.
func (l *VestingLedger) TotalClaimed() (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := fpmath.Zero()
	for _, a := range l.allocations {
		var err error
		if sum, err = fpmath.Add(sum, a.claimed); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return sum, nil
}

func (l *VestingLedger) Accounts() []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedAccounts(l.allocations)
}
