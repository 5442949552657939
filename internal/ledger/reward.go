package ledger

import (
	"fmt"
	"sort"
	"sync"

	"rewardengine/internal/emission"
	"rewardengine/internal/fee"
	fpmath "rewardengine/internal/math"
	"rewardengine/internal/oracle"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PoolDescriptor identifies a pool and how its fund balance is weighted.
type PoolDescriptor struct {
	ID        string
	Converter oracle.Converter
}

// ShareToken is the external view of pool share balances.
type ShareToken interface {
	TotalSupply(poolID string) (sdkmath.Int, error)
	BalanceOf(poolID string, account uuid.UUID) (sdkmath.Int, error)
}

// Mismatch is a difference between the ledger's share book and a ShareToken.
// Account is uuid.Nil when the pool total differs.
type Mismatch struct {
	PoolID   string      `json:"pool_id"`
	Account  uuid.UUID   `json:"account"`
	Internal sdkmath.Int `json:"internal"`
	External sdkmath.Int `json:"external"`
}

type RewardConfig struct {
	Name   string
	Curve  *emission.Curve
	Fee    *fee.Schedule // nil charges nothing
	Oracle oracle.PoolWeightOracle
	Pools  []PoolDescriptor
	Logger zerolog.Logger
}

type rewardPool struct {
	desc     PoolDescriptor
	perShare sdkmath.Int
	supply   sdkmath.Int
}

type rewardPosition struct {
	shares sdkmath.Int
	index  sdkmath.Int
}

type rewardAccount struct {
	positions map[string]*rewardPosition
	unclaimed sdkmath.Int
	claimed   sdkmath.Int
}

func newRewardAccount() *rewardAccount {
	return &rewardAccount{
		positions: make(map[string]*rewardPosition),
		unclaimed: fpmath.Zero(),
		claimed:   fpmath.Zero(),
	}
}

func (a *rewardAccount) shares(poolID string) sdkmath.Int {
	if p, ok := a.positions[poolID]; ok {
		return p.shares
	}
	return fpmath.Zero()
}

// RewardLedger distributes one emission curve across a set of pools weighted
// by their externally reported fund balances. Each pool keeps its own
// reward-per-share accumulator over its share supply.
//
// Every exported method takes the ledger lock for its whole duration.
type RewardLedger struct {
	mu sync.Mutex

	name   string
	curve  *emission.Curve
	fee    *fee.Schedule
	oracle oracle.PoolWeightOracle
	logger zerolog.Logger

	pools     map[string]*rewardPool
	poolOrder []string
	accounts  map[uuid.UUID]*rewardAccount

	lastUpdate  uint64
	distributed sdkmath.Int
	frozen      bool
}

func NewRewardLedger(cfg RewardConfig) (*RewardLedger, error) {
	if cfg.Curve == nil {
		return nil, fmt.Errorf("reward ledger %s: curve is required", cfg.Name)
	}
	l := &RewardLedger{
		name:        cfg.Name,
		curve:       cfg.Curve,
		fee:         cfg.Fee,
		oracle:      cfg.Oracle,
		logger:      cfg.Logger.With().Str("ledger", cfg.Name).Logger(),
		pools:       make(map[string]*rewardPool),
		accounts:    make(map[uuid.UUID]*rewardAccount),
		distributed: fpmath.Zero(),
	}
	for _, d := range cfg.Pools {
		if err := l.addPool(d); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// AddPool extends the pool set. Pools are never removed.
func (l *RewardLedger) AddPool(d PoolDescriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addPool(d)
}

func (l *RewardLedger) addPool(d PoolDescriptor) error {
	if d.ID == "" {
		return fmt.Errorf("reward ledger %s: empty pool id", l.name)
	}
	if _, ok := l.pools[d.ID]; ok {
		return fmt.Errorf("reward ledger %s: pool %s already registered", l.name, d.ID)
	}
	if d.Converter == nil {
		d.Converter = oracle.Identity{}
	}
	l.pools[d.ID] = &rewardPool{desc: d, perShare: fpmath.Zero(), supply: fpmath.Zero()}
	l.poolOrder = append(l.poolOrder, d.ID)
	return nil
}

func (l *RewardLedger) Name() string               { return l.name }
func (l *RewardLedger) Curve() *emission.Curve     { return l.curve }
func (l *RewardLedger) FeeSchedule() *fee.Schedule { return l.fee }

func (l *RewardLedger) PoolIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.poolOrder...)
}

func (l *RewardLedger) LastUpdateUnit() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUpdate
}

func (l *RewardLedger) Frozen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frozen
}

// ============================================================================
// Settlement
// ============================================================================

// settlement holds the accumulator values a global settlement would commit.
type settlement struct {
	unit        uint64
	perShare    map[string]sdkmath.Int
	distributed sdkmath.Int
}

// settle computes the global state at now without mutating the ledger. The
// oracle is only read when the curve released something since the last
// update; any read failure aborts the whole settlement.
func (l *RewardLedger) settle(now uint64) (*settlement, error) {
	s := &settlement{
		unit:        l.lastUpdate,
		perShare:    make(map[string]sdkmath.Int, len(l.pools)),
		distributed: l.distributed,
	}
	for id, p := range l.pools {
		s.perShare[id] = p.perShare
	}
	if l.frozen || now <= l.lastUpdate {
		return s, nil
	}
	s.unit = now

	delta, err := emittedDelta(l.curve.CumulativeEmitted, l.lastUpdate, now)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: emission: %w", l.name, err)
	}
	if delta.IsZero() || !l.hasSupply() {
		return s, nil
	}
	if l.oracle == nil {
		return nil, fmt.Errorf("ledger %s: %w: no oracle configured", l.name, oracle.ErrOracleUnavailable)
	}

	weights := make([]sdkmath.Int, len(l.poolOrder))
	total := fpmath.Zero()
	for i, id := range l.poolOrder {
		w, err := oracle.Weight(l.oracle, id, l.pools[id].desc.Converter)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: %w", l.name, err)
		}
		weights[i] = w
		if total, err = fpmath.Add(total, w); err != nil {
			return nil, fmt.Errorf("ledger %s: total weight: %w", l.name, err)
		}
	}
	if total.IsZero() {
		return s, nil
	}

	for i, id := range l.poolOrder {
		p := l.pools[id]
		if weights[i].IsZero() || p.supply.IsZero() {
			continue
		}
		share, err := fpmath.MulDiv(delta, weights[i], total)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: pool %s share: %w", l.name, id, err)
		}
		next, err := advanceIndex(s.perShare[id], share, p.supply)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: pool %s index: %w", l.name, id, err)
		}
		if s.distributed, err = fpmath.Add(s.distributed, share); err != nil {
			return nil, err
		}
		s.perShare[id] = next
	}
	return s, nil
}

// hasSupply reports whether any pool has outstanding shares. Emission over a
// period with no shares is not distributed, so the oracle is not consulted.
func (l *RewardLedger) hasSupply() bool {
	for _, p := range l.pools {
		if p.supply.IsPositive() {
			return true
		}
	}
	return false
}

func (l *RewardLedger) commit(s *settlement) {
	for id, v := range s.perShare {
		l.pools[id].perShare = v
	}
	l.lastUpdate = s.unit
	l.distributed = s.distributed
}

// settledUnclaimed returns the account's unclaimed balance after settling it
// against s.
func (l *RewardLedger) settledUnclaimed(s *settlement, a *rewardAccount) (sdkmath.Int, error) {
	total := a.unclaimed
	for id, pos := range a.positions {
		owed, err := accrued(s.perShare[id], pos.index, pos.shares)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("ledger %s: pool %s: %w", l.name, id, err)
		}
		if total, err = fpmath.Add(total, owed); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return total, nil
}

// checkpoint stores the settled balance and moves every index to s.
func (l *RewardLedger) checkpoint(s *settlement, id uuid.UUID, a *rewardAccount, unclaimed sdkmath.Int) {
	a.unclaimed = unclaimed
	for poolID, pos := range a.positions {
		pos.index = s.perShare[poolID]
	}
	l.accounts[id] = a
}

func (l *RewardLedger) lookup(id uuid.UUID) *rewardAccount {
	if a, ok := l.accounts[id]; ok {
		return a
	}
	return newRewardAccount()
}

func (l *RewardLedger) position(a *rewardAccount, poolID string) *rewardPosition {
	pos, ok := a.positions[poolID]
	if !ok {
		pos = &rewardPosition{shares: fpmath.Zero(), index: l.pools[poolID].perShare}
		a.positions[poolID] = pos
	}
	return pos
}

// SettleGlobal brings every pool accumulator up to now. Calling it again with
// the same unit is a no-op.
func (l *RewardLedger) SettleGlobal(now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	l.commit(s)
	return nil
}

// SettleAccount settles the global index and then the account.
func (l *RewardLedger) SettleAccount(account uuid.UUID, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	a := l.lookup(account)
	unclaimed, err := l.settledUnclaimed(s, a)
	if err != nil {
		return err
	}
	l.commit(s)
	l.checkpoint(s, account, a, unclaimed)
	return nil
}

// GetUnclaimed returns what the account could claim at now without mutating
// the ledger.
func (l *RewardLedger) GetUnclaimed(account uuid.UUID, now uint64) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.settle(now)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return l.settledUnclaimed(s, l.lookup(account))
}

// Claimed returns the pre-fee total the account has claimed.
func (l *RewardLedger) Claimed(account uuid.UUID) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(account).claimed
}

// Shares returns the account's share balance in a pool.
func (l *RewardLedger) Shares(account uuid.UUID, poolID string) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(account).shares(poolID)
}

// TotalSupply returns the share supply tracked for a pool.
func (l *RewardLedger) TotalSupply(poolID string) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pools[poolID]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	return p.supply, nil
}

// ============================================================================
// Share hooks
// ============================================================================

func (l *RewardLedger) checkShareHook(poolID string, amount sdkmath.Int) error {
	if l.frozen {
		return fmt.Errorf("ledger %s: %w", l.name, ErrLedgerFrozen)
	}
	if _, ok := l.pools[poolID]; !ok {
		return fmt.Errorf("ledger %s: %w: %s", l.name, ErrUnknownPool, poolID)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("ledger %s: %w: share amount must be positive", l.name, ErrInvalidAmount)
	}
	return nil
}

// Mint records newly issued pool shares. The account is settled at its old
// balance first.
func (l *RewardLedger) Mint(account uuid.UUID, poolID string, amount sdkmath.Int, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkShareHook(poolID, amount); err != nil {
		return err
	}
	p := l.pools[poolID]

	s, err := l.settle(now)
	if err != nil {
		return err
	}
	a := l.lookup(account)
	unclaimed, err := l.settledUnclaimed(s, a)
	if err != nil {
		return err
	}
	shares, err := fpmath.Add(a.shares(poolID), amount)
	if err != nil {
		return err
	}
	supply, err := fpmath.Add(p.supply, amount)
	if err != nil {
		return err
	}

	l.commit(s)
	l.position(a, poolID)
	l.checkpoint(s, account, a, unclaimed)
	a.positions[poolID].shares = shares
	p.supply = supply
	return nil
}

// Burn records destroyed pool shares.
func (l *RewardLedger) Burn(account uuid.UUID, poolID string, amount sdkmath.Int, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkShareHook(poolID, amount); err != nil {
		return err
	}
	p := l.pools[poolID]

	s, err := l.settle(now)
	if err != nil {
		return err
	}
	a := l.lookup(account)
	held := a.shares(poolID)
	if amount.GT(held) {
		return fmt.Errorf("ledger %s: %w: burn %s, held %s", l.name, ErrInsufficientShareBalance, amount, held)
	}
	unclaimed, err := l.settledUnclaimed(s, a)
	if err != nil {
		return err
	}
	shares, err := fpmath.Sub(held, amount)
	if err != nil {
		return err
	}
	supply, err := fpmath.Sub(p.supply, amount)
	if err != nil {
		return err
	}

	l.commit(s)
	l.checkpoint(s, account, a, unclaimed)
	a.positions[poolID].shares = shares
	p.supply = supply
	return nil
}

// Transfer moves pool shares between accounts. Both sides are settled at
// their old balances first; the pool supply is unchanged.
func (l *RewardLedger) Transfer(from, to uuid.UUID, poolID string, amount sdkmath.Int, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkShareHook(poolID, amount); err != nil {
		return err
	}

	s, err := l.settle(now)
	if err != nil {
		return err
	}
	src := l.lookup(from)
	held := src.shares(poolID)
	if amount.GT(held) {
		return fmt.Errorf("ledger %s: %w: transfer %s, held %s", l.name, ErrInsufficientShareBalance, amount, held)
	}
	srcUnclaimed, err := l.settledUnclaimed(s, src)
	if err != nil {
		return err
	}
	if from == to {
		l.commit(s)
		l.checkpoint(s, from, src, srcUnclaimed)
		return nil
	}

	dst := l.lookup(to)
	dstUnclaimed, err := l.settledUnclaimed(s, dst)
	if err != nil {
		return err
	}
	srcShares, err := fpmath.Sub(held, amount)
	if err != nil {
		return err
	}
	dstShares, err := fpmath.Add(dst.shares(poolID), amount)
	if err != nil {
		return err
	}

	l.commit(s)
	l.checkpoint(s, from, src, srcUnclaimed)
	l.position(dst, poolID)
	l.checkpoint(s, to, dst, dstUnclaimed)
	src.positions[poolID].shares = srcShares
	dst.positions[poolID].shares = dstShares
	return nil
}

// ShareHolding is one account's share balance in one pool.
type ShareHolding struct {
	PoolID  string
	Account uuid.UUID
	Shares  sdkmath.Int
}

// ShareBook lists every positive share balance, ordered by account and then
// by pool registration order.
func (l *RewardLedger) ShareBook() []ShareHolding {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ShareHolding
	for _, id := range sortedAccounts(l.accounts) {
		a := l.accounts[id]
		for _, poolID := range l.poolOrder {
			if sh := a.shares(poolID); sh.IsPositive() {
				out = append(out, ShareHolding{PoolID: poolID, Account: id, Shares: sh})
			}
		}
	}
	return out
}

// CheckShareBook reports the first holding in a pool this ledger does not track.
func (l *RewardLedger) CheckShareBook(book []ShareHolding) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkShareBook(book)
}

func (l *RewardLedger) checkShareBook(book []ShareHolding) error {
	for _, h := range book {
		if _, ok := l.pools[h.PoolID]; !ok {
			return fmt.Errorf("ledger %s: %w: %s", l.name, ErrUnknownPool, h.PoolID)
		}
		if h.Shares.IsNil() || !h.Shares.IsPositive() {
			return fmt.Errorf("ledger %s: %w: seeded shares must be positive", l.name, ErrInvalidAmount)
		}
	}
	return nil
}

// SeedShares adds a share book to the ledger at now. Seeded positions start
// at the pool's index as of now, so they earn only what this ledger emits
// afterwards. Nothing changes if any holding is rejected.
func (l *RewardLedger) SeedShares(book []ShareHolding, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return fmt.Errorf("ledger %s: %w", l.name, ErrLedgerFrozen)
	}
	if err := l.checkShareBook(book); err != nil {
		return err
	}

	s, err := l.settle(now)
	if err != nil {
		return err
	}

	type holding struct {
		account uuid.UUID
		pool    string
	}
	accounts := make(map[uuid.UUID]*rewardAccount)
	owed := make(map[uuid.UUID]sdkmath.Int)
	shares := make(map[holding]sdkmath.Int)
	supply := make(map[string]sdkmath.Int, len(l.pools))
	for id, p := range l.pools {
		supply[id] = p.supply
	}
	for _, h := range book {
		a, ok := accounts[h.Account]
		if !ok {
			a = l.lookup(h.Account)
			u, err := l.settledUnclaimed(s, a)
			if err != nil {
				return err
			}
			accounts[h.Account], owed[h.Account] = a, u
		}
		k := holding{account: h.Account, pool: h.PoolID}
		cur, ok := shares[k]
		if !ok {
			cur = a.shares(h.PoolID)
		}
		if shares[k], err = fpmath.Add(cur, h.Shares); err != nil {
			return err
		}
		if supply[h.PoolID], err = fpmath.Add(supply[h.PoolID], h.Shares); err != nil {
			return err
		}
	}

	l.commit(s)
	for id, a := range accounts {
		l.checkpoint(s, id, a, owed[id])
	}
	for k, v := range shares {
		l.position(accounts[k.account], k.pool).shares = v
	}
	for id, v := range supply {
		l.pools[id].supply = v
	}
	l.logger.Info().Int("holdings", len(book)).Uint64("unit", now).Msg("share book seeded")
	return nil
}

// ============================================================================
// Claims
// ============================================================================

// Claim claims exactly amount. It fails if amount exceeds the unclaimed balance.
func (l *RewardLedger) Claim(account uuid.UUID, amount sdkmath.Int, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, &amount, now, nil)
}

// ClaimAll claims the whole unclaimed balance.
func (l *RewardLedger) ClaimAll(account uuid.UUID, now uint64) (ClaimResult, error) {
	return l.ClaimWith(account, nil, now, nil)
}

// ClaimWith settles, computes the claim and calls payout before committing.
// A nil amount claims everything. If payout fails nothing changes.
func (l *RewardLedger) ClaimWith(account uuid.UUID, amount *sdkmath.Int, now uint64, payout PayoutFunc) (ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.settle(now)
	if err != nil {
		return ClaimResult{}, err
	}
	a := l.lookup(account)
	unclaimed, err := l.settledUnclaimed(s, a)
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
	claimed, err := fpmath.Add(a.claimed, res.Requested)
	if err != nil {
		return ClaimResult{}, err
	}
	if payout != nil {
		if err := payout(res); err != nil {
			return ClaimResult{}, fmt.Errorf("ledger %s: payout: %w", l.name, err)
		}
	}

	l.commit(s)
	l.checkpoint(s, account, a, remaining)
	a.claimed = claimed

	l.logger.Debug().
		Str("account", account.String()).
		Str("requested", res.Requested.String()).
		Str("fee", res.Fee.String()).
		Uint64("unit", now).
		Msg("reward claimed")
	return res, nil
}

// Freeze settles to now and stops accrual for good. Claims and queries keep
// working against the frozen balances.
func (l *RewardLedger) Freeze(now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return nil
	}
	s, err := l.settle(now)
	if err != nil {
		return err
	}
	l.commit(s)
	l.frozen = true
	l.logger.Info().Uint64("unit", l.lastUpdate).Msg("ledger frozen")
	return nil
}

// ============================================================================
// Verification
// ============================================================================

// Totals returns the settled unclaimed sum, the claimed sum and the amount
// pushed into accumulators so far.
func (l *RewardLedger) Totals() (unclaimed, claimed, distributed sdkmath.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals()
}

func (l *RewardLedger) totals() (unclaimed, claimed, distributed sdkmath.Int, err error) {
	unclaimed, claimed = fpmath.Zero(), fpmath.Zero()
	for _, a := range l.accounts {
		if unclaimed, err = fpmath.Add(unclaimed, a.unclaimed); err != nil {
			return
		}
		if claimed, err = fpmath.Add(claimed, a.claimed); err != nil {
			return
		}
	}
	return unclaimed, claimed, l.distributed, nil
}

// CheckConservation verifies that settled and claimed rewards never exceed
// what the curve released by now.
func (l *RewardLedger) CheckConservation(now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	unclaimed, claimed, distributed, err := l.totals()
	if err != nil {
		return err
	}
	owed, err := fpmath.Add(unclaimed, claimed)
	if err != nil {
		return err
	}
	if owed.GT(distributed) {
		return fmt.Errorf("ledger %s: %w: owed %s > distributed %s", l.name, ErrConservationViolated, owed, distributed)
	}
	if now < l.lastUpdate {
		now = l.lastUpdate
	}
	budget, err := l.curve.CumulativeEmitted(now)
	if err != nil {
		return err
	}
	if distributed.GT(budget) {
		return fmt.Errorf("ledger %s: %w: distributed %s > emitted %s", l.name, ErrConservationViolated, distributed, budget)
	}
	return nil
}

// Reconcile compares the share book with an external ShareToken for the pool
// totals and the given accounts.
func (l *RewardLedger) Reconcile(token ShareToken, accounts []uuid.UUID) ([]Mismatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Mismatch
	for _, id := range l.poolOrder {
		ext, err := token.TotalSupply(id)
		if err != nil {
			return nil, fmt.Errorf("ledger %s: total supply of %s: %w", l.name, id, err)
		}
		if internal := l.pools[id].supply; !internal.Equal(ext) {
			out = append(out, Mismatch{PoolID: id, Account: uuid.Nil, Internal: internal, External: ext})
		}
		for _, acc := range accounts {
			ext, err := token.BalanceOf(id, acc)
			if err != nil {
				return nil, fmt.Errorf("ledger %s: balance of %s in %s: %w", l.name, acc, id, err)
			}
			if internal := l.lookup(acc).shares(id); !internal.Equal(ext) {
				out = append(out, Mismatch{PoolID: id, Account: acc, Internal: internal, External: ext})
			}
		}
	}
	return out, nil
}

// Accounts lists every account the ledger has seen, sorted.
func (l *RewardLedger) Accounts() []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedAccounts(l.accounts)
}

func sortedAccounts[T any](m map[uuid.UUID]T) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
