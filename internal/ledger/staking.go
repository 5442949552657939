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

type StakingConfig struct {
	Name   string
	Curve  *emission.Curve
	Fee    *fee.Schedule
	Logger zerolog.Logger
}

type stakePosition struct {
	staked    sdkmath.Int
	index     sdkmath.Int
	unclaimed sdkmath.Int
	claimed   sdkmath.Int
}

// StakingLedger accrues one curve over a single pool whose denominator is the
// total staked amount.
type StakingLedger struct {
	mu sync.Mutex

	name   string
	curve  *emission.Curve
	fee    *fee.Schedule
	logger zerolog.Logger

	perShare    sdkmath.Int
	totalStaked sdkmath.Int
	positions   map[uuid.UUID]*stakePosition
	lastUpdate  uint64
	distributed sdkmath.Int
}

func NewStakingLedger(cfg StakingConfig) (*StakingLedger, error) {
	if cfg.Curve == nil {
		return nil, fmt.Errorf("staking ledger %s: curve is required", cfg.Name)
	}
	return &StakingLedger{
		name:        cfg.Name,
		curve:       cfg.Curve,
		fee:         cfg.Fee,
		logger:      cfg.Logger.With().Str("ledger", cfg.Name).Logger(),
		perShare:    fpmath.Zero(),
		totalStaked: fpmath.Zero(),
		positions:   make(map[uuid.UUID]*stakePosition),
		distributed: fpmath.Zero(),
	}, nil
}

func (l *StakingLedger) Name() string               { return l.name }
func (l *StakingLedger) Curve() *emission.Curve     { return l.curve }
func (l *StakingLedger) FeeSchedule() *fee.Schedule { return l.fee }

type stakeSettlement struct {
	unit        uint64
	perShare    sdkmath.Int
	distributed sdkmath.Int
}

func (l *StakingLedger) settle(now uint64) (stakeSettlement, error) {
	s := stakeSettlement{unit: l.lastUpdate, perShare: l.perShare, distributed: l.distributed}
	if now <= l.lastUpdate {
		return s, nil
	}
	s.unit = now
	if l.totalStaked.IsZero() {
		return s, nil
	}
	delta, err := emittedDelta(l.curve.CumulativeEmitted, l.lastUpdate, now)
	if err != nil {
		return stakeSettlement{}, fmt.Errorf("ledger %s: emission: %w", l.name, err)
	}
	if s.perShare, err = advanceIndex(l.perShare, delta, l.totalStaked); err != nil {
		return stakeSettlement{}, fmt.Errorf("ledger %s: index: %w", l.name, err)
	}
	if s.distributed, err = fpmath.Add(l.distributed, delta); err != nil {
		return stakeSettlement{}, err
	}
	return s, nil
}

func (l *StakingLedger) commit(s stakeSettlement) {
	l.perShare = s.perShare
	l.lastUpdate = s.unit
	l.distributed = s.distributed
}

func (l *StakingLedger) lookup(id uuid.UUID) *stakePosition {
	if p, ok := l.positions[id]; ok {
		return p
	}
	return &stakePosition{
		staked:    fpmath.Zero(),
		index:     l.perShare,
		unclaimed: fpmath.Zero(),
		claimed:   fpmath.Zero(),
	}
}

func (l *StakingLedger) settledUnclaimed(s stakeSettlement, p *stakePosition) (sdkmath.Int, error) {
	owed, err := accrued(s.perShare, p.index, p.staked)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("ledger %s: %w", l.name, err)
	}
	return fpmath.Add(p.unclaimed, owed)
}

func (l *StakingLedger) checkpoint(s stakeSettlement, id uuid.UUID, p *stakePosition, unclaimed sdkmath.Int) {
	p.unclaimed = unclaimed
	p.index = s.perShare
	l.positions[id] = p
}

// SettleGlobal brings the accumulator up to now.
func (l *StakingLedger) SettleGlobal(now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	l.commit(s)
	return nil
}

// Deposit stakes amount for account after settling it at its old stake.
func (l *StakingLedger) Deposit(account uuid.UUID, amount sdkmath.Int, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("ledger %s: %w: deposit must be positive", l.name, ErrInvalidAmount)
	}
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	p := l.lookup(account)
	unclaimed, err := l.settledUnclaimed(s, p)
	if err != nil {
		return err
	}
	staked, err := fpmath.Add(p.staked, amount)
	if err != nil {
		return err
	}
	total, err := fpmath.Add(l.totalStaked, amount)
	if err != nil {
		return err
	}

	l.commit(s)
	l.checkpoint(s, account, p, unclaimed)
	p.staked = staked
	l.totalStaked = total
	return nil
}

// Withdraw unstakes amount. It fails if amount exceeds the account's stake.
func (l *StakingLedger) Withdraw(account uuid.UUID, amount sdkmath.Int, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("ledger %s: %w: withdrawal must be positive", l.name, ErrInvalidAmount)
	}
	p := l.lookup(account)
	if amount.GT(p.staked) {
		return fmt.Errorf("ledger %s: %w: withdraw %s, staked %s", l.name, ErrInsufficientStakedBalance, amount, p.staked)
	}
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	unclaimed, err := l.settledUnclaimed(s, p)
	if err != nil {
		return err
	}
	staked, err := fpmath.Sub(p.staked, amount)
	if err != nil {
		return err
	}
	total, err := fpmath.Sub(l.totalStaked, amount)
	if err != nil {
		return err
	}

	l.commit(s)
	l.checkpoint(s, account, p, unclaimed)
	p.staked = staked
	l.totalStaked = total
	return nil
}

// GetUnclaimed returns the claimable amount at now without mutating state.
func (l *StakingLedger) GetUnclaimed(account uuid.UUID, now uint64) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.settle(now)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return l.settledUnclaimed(s, l.lookup(account))
}

func (l *StakingLedger) StakedBalance(account uuid.UUID) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(account).staked
}

func (l *StakingLedger) TotalStaked() sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalStaked
}

func (l *StakingLedger) Claimed(account uuid.UUID) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(account).claimed
}

func (l *StakingLedger) Claim(account uuid.UUID, amount sdkmath.Int, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, &amount, now, nil)
}

func (l *StakingLedger) ClaimAll(account uuid.UUID, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, nil, now, nil)
}

// ClaimWith has the same contract as RewardLedger.ClaimWith.
func (l *StakingLedger) ClaimWith(account uuid.UUID, amount *sdkmath.Int, now uint64, payout PayoutFunc) (ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.settle(now)
	if err != nil {
		return ClaimResult{}, err
	}
	p := l.lookup(account)
	unclaimed, err := l.settledUnclaimed(s, p)
	if err != nil {
		return ClaimResult{}, err
	}
	res, err := resolveClaim(account, amount, unclaimed, l.fee, now)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("ledger %s: %w", l.name, err)
	}
	remaining, err := fpmath.Sub(unclaimed, res.Requested)
	if err != nil {
		return ClaimResult{}, err
	}
	claimed, err := fpmath.Add(p.claimed, res.Requested)
	if err != nil {
		return ClaimResult{}, err
	}
	if payout != nil {
		if err := payout(res); err != nil {
			return ClaimResult{}, fmt.Errorf("ledger %s: payout: %w", l.name, err)
		}
	}

	l.commit(s)
	l.checkpoint(s, account, p, remaining)
	p.claimed = claimed

	l.logger.Debug().
		Str("account", account.String()).
		Str("requested", res.Requested.String()).
		Uint64("unit", now).
		Msg("staking reward claimed")
	return res, nil
}

func (l *StakingLedger) totals() (unclaimed, claimed sdkmath.Int, err error) {
	unclaimed, claimed = fpmath.Zero(), fpmath.Zero()
	for _, p := range l.positions {
		if unclaimed, err = fpmath.Add(unclaimed, p.unclaimed); err != nil {
			return
		}
		if claimed, err = fpmath.Add(claimed, p.claimed); err != nil {
			return
		}
	}
	return unclaimed, claimed, nil
}

// CheckConservation verifies settled and claimed rewards stay within the
// curve budget at now.
func (l *StakingLedger) CheckConservation(now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	unclaimed, claimed, err := l.totals()
	if err != nil {
		return err
	}
	owed, err := fpmath.Add(unclaimed, claimed)
	if err != nil {
		return err
	}
	if owed.GT(l.distributed) {
		return fmt.Errorf("ledger %s: %w: owed %s > distributed %s", l.name, ErrConservationViolated, owed, l.distributed)
	}
	if now < l.lastUpdate {
		now = l.lastUpdate
	}
	budget, err := l.curve.CumulativeEmitted(now)
	if err != nil {
		return err
	}
	if l.distributed.GT(budget) {
		return fmt.Errorf("ledger %s: %w: distributed %s > emitted %s", l.name, ErrConservationViolated, l.distributed, budget)
	}
	return nil
}

// TotalClaimed is the pre-fee sum of every committed staking claim.
func (l *StakingLedger) TotalClaimed() (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, claimed, err := l.totals()
	return claimed, err
}

func (l *StakingLedger) LastUpdateUnit() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUpdate
}

func (l *StakingLedger) Accounts() []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedAccounts(l.positions)
}
