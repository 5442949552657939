package ledger

import (
	"fmt"
	"sort"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Snapshot types are plain JSON documents. Accounts and pools are sorted so
// equal ledgers serialise to equal bytes.

type PoolState struct {
	ID          string      `json:"id"`
	RewardIndex sdkmath.Int `json:"reward_index"`
	Supply      sdkmath.Int `json:"supply"`
}

type PositionState struct {
	PoolID string      `json:"pool_id"`
	Shares sdkmath.Int `json:"shares"`
	Index  sdkmath.Int `json:"index"`
}

type RewardAccountState struct {
	Account   uuid.UUID       `json:"account"`
	Unclaimed sdkmath.Int     `json:"unclaimed"`
	Claimed   sdkmath.Int     `json:"claimed"`
	Positions []PositionState `json:"positions"`
}

type RewardLedgerState struct {
	Name           string               `json:"name"`
	LastUpdateUnit uint64               `json:"last_update_unit"`
	Distributed    sdkmath.Int          `json:"distributed"`
	Frozen         bool                 `json:"frozen"`
	Pools          []PoolState          `json:"pools"`
	Accounts       []RewardAccountState `json:"accounts"`
}

type StakePositionState struct {
	Account   uuid.UUID   `json:"account"`
	Staked    sdkmath.Int `json:"staked"`
	Index     sdkmath.Int `json:"index"`
	Unclaimed sdkmath.Int `json:"unclaimed"`
	Claimed   sdkmath.Int `json:"claimed"`
}

type StakingLedgerState struct {
	Name           string               `json:"name"`
	LastUpdateUnit uint64               `json:"last_update_unit"`
	RewardIndex    sdkmath.Int          `json:"reward_index"`
	TotalStaked    sdkmath.Int          `json:"total_staked"`
	Distributed    sdkmath.Int          `json:"distributed"`
	Positions      []StakePositionState `json:"positions"`
}

type AllocationState struct {
	Account uuid.UUID   `json:"account"`
	Total   sdkmath.Int `json:"total"`
	Claimed sdkmath.Int `json:"claimed"`
}

type VestingLedgerState struct {
	Name        string            `json:"name"`
	Allocations []AllocationState `json:"allocations"`
}

// ============================================================================
// RewardLedger
// ============================================================================

func (l *RewardLedger) Snapshot() RewardLedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := RewardLedgerState{
		Name:           l.name,
		LastUpdateUnit: l.lastUpdate,
		Distributed:    l.distributed,
		Frozen:         l.frozen,
		Pools:          make([]PoolState, 0, len(l.poolOrder)),
		Accounts:       make([]RewardAccountState, 0, len(l.accounts)),
	}
	for _, id := range l.poolOrder {
		p := l.pools[id]
		st.Pools = append(st.Pools, PoolState{ID: id, RewardIndex: p.perShare, Supply: p.supply})
	}
	for _, id := range sortedAccounts(l.accounts) {
		a := l.accounts[id]
		as := RewardAccountState{Account: id, Unclaimed: a.unclaimed, Claimed: a.claimed}
		poolIDs := make([]string, 0, len(a.positions))
		for pid := range a.positions {
			poolIDs = append(poolIDs, pid)
		}
		sort.Strings(poolIDs)
		for _, pid := range poolIDs {
			pos := a.positions[pid]
			as.Positions = append(as.Positions, PositionState{PoolID: pid, Shares: pos.shares, Index: pos.index})
		}
		st.Accounts = append(st.Accounts, as)
	}
	return st
}

// Restore replaces the ledger state. Every pool in st must already be
// registered on the ledger.
func (l *RewardLedger) Restore(st RewardLedgerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ps := range st.Pools {
		if _, ok := l.pools[ps.ID]; !ok {
			return fmt.Errorf("ledger %s: restore: %w: %s", l.name, ErrUnknownPool, ps.ID)
		}
	}
	accounts := make(map[uuid.UUID]*rewardAccount, len(st.Accounts))
	for _, as := range st.Accounts {
		a := newRewardAccount()
		a.unclaimed = fpmath.OrZero(as.Unclaimed)
		a.claimed = fpmath.OrZero(as.Claimed)
		for _, ps := range as.Positions {
			if _, ok := l.pools[ps.PoolID]; !ok {
				return fmt.Errorf("ledger %s: restore: %w: %s", l.name, ErrUnknownPool, ps.PoolID)
			}
			a.positions[ps.PoolID] = &rewardPosition{shares: fpmath.OrZero(ps.Shares), index: fpmath.OrZero(ps.Index)}
		}
		accounts[as.Account] = a
	}

	for _, p := range l.pools {
		p.perShare, p.supply = fpmath.Zero(), fpmath.Zero()
	}
	for _, ps := range st.Pools {
		p := l.pools[ps.ID]
		p.perShare = fpmath.OrZero(ps.RewardIndex)
		p.supply = fpmath.OrZero(ps.Supply)
	}
	l.accounts = accounts
	l.lastUpdate = st.LastUpdateUnit
	l.distributed = fpmath.OrZero(st.Distributed)
	l.frozen = st.Frozen
	return nil
}

// ============================================================================
// StakingLedger
// ============================================================================

func (l *StakingLedger) Snapshot() StakingLedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := StakingLedgerState{
		Name:           l.name,
		LastUpdateUnit: l.lastUpdate,
		RewardIndex:    l.perShare,
		TotalStaked:    l.totalStaked,
		Distributed:    l.distributed,
		Positions:      make([]StakePositionState, 0, len(l.positions)),
	}
	for _, id := range sortedAccounts(l.positions) {
		p := l.positions[id]
		st.Positions = append(st.Positions, StakePositionState{
			Account:   id,
			Staked:    p.staked,
			Index:     p.index,
			Unclaimed: p.unclaimed,
			Claimed:   p.claimed,
		})
	}
	return st
}

func (l *StakingLedger) Restore(st StakingLedgerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[uuid.UUID]*stakePosition, len(st.Positions))
	total := fpmath.Zero()
	for _, ps := range st.Positions {
		p := &stakePosition{
			staked:    fpmath.OrZero(ps.Staked),
			index:     fpmath.OrZero(ps.Index),
			unclaimed: fpmath.OrZero(ps.Unclaimed),
			claimed:   fpmath.OrZero(ps.Claimed),
		}
		var err error
		if total, err = fpmath.Add(total, p.staked); err != nil {
			return err
		}
		positions[ps.Account] = p
	}
	if !total.Equal(fpmath.OrZero(st.TotalStaked)) {
		return fmt.Errorf("ledger %s: restore: positions sum to %s, total staked is %s", l.name, total, st.TotalStaked)
	}
	l.positions = positions
	l.totalStaked = total
	l.perShare = fpmath.OrZero(st.RewardIndex)
	l.distributed = fpmath.OrZero(st.Distributed)
	l.lastUpdate = st.LastUpdateUnit
	return nil
}

// ============================================================================
// VestingLedger
// ============================================================================

func (l *VestingLedger) Snapshot() VestingLedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := VestingLedgerState{Name: l.name, Allocations: make([]AllocationState, 0, len(l.allocations))}
	for _, id := range sortedAccounts(l.allocations) {
		a := l.allocations[id]
		st.Allocations = append(st.Allocations, AllocationState{Account: id, Total: a.total, Claimed: a.claimed})
	}
	return st
}

func (l *VestingLedger) Restore(st VestingLedgerState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allocations := make(map[uuid.UUID]*allocation, len(st.Allocations))
	for _, as := range st.Allocations {
		a := &allocation{total: fpmath.OrZero(as.Total), claimed: fpmath.OrZero(as.Claimed)}
		if a.claimed.GT(a.total) {
			return fmt.Errorf("ledger %s: restore: %w: %s", l.name, ErrInconsistentVestingState, as.Account)
		}
		allocations[as.Account] = a
	}
	l.allocations = allocations
	return nil
}
