package core

import (
	"fmt"

	"rewardengine/internal/ledger"
	"rewardengine/internal/oracle"
)

// SnapshotState is the full in-memory state of the core. It is a JSON
// document; persistence stores it next to its sequence and state hash.
type SnapshotState struct {
	Sequence        int64                               `json:"sequence"` // last processed sequence
	StateHash       [32]byte                            `json:"state_hash"`
	ActiveVersion   string                              `json:"active_version,omitempty"`
	Rewards         map[string]ledger.RewardLedgerState `json:"rewards"`
	Pools           map[string][]PoolSpec               `json:"pools,omitempty"`
	Staking         *ledger.StakingLedgerState          `json:"staking,omitempty"`
	Vesting         *ledger.VestingLedgerState          `json:"vesting,omitempty"`
	Oracle          map[string]oracle.Reading           `json:"oracle"`
	Balances        []ledger.BalanceEntry               `json:"balances"`
	SequenceState   map[string]int64                    `json:"sequence_state"`
	IdempotencyKeys []string                            `json:"idempotency_keys"`
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg := c.coordinator.Registry()
	snap := &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Rewards:         make(map[string]ledger.RewardLedgerState),
		Pools:           make(map[string][]PoolSpec, len(c.pools)),
		Oracle:          c.board.Snapshot(),
		Balances:        c.balanceTracker.Entries(),
		SequenceState:   c.sequenceValidator.Partitions(),
		IdempotencyKeys: c.idempotency.RecentKeys(),
	}
	if active, err := reg.Active(); err == nil {
		snap.ActiveVersion = active.Version
	}
	for _, e := range reg.Versions() {
		snap.Rewards[e.Version] = e.Ledger.Snapshot()
	}
	for v, specs := range c.pools {
		snap.Pools[v] = append([]PoolSpec(nil), specs...)
	}
	if s := c.coordinator.Staking(); s != nil {
		st := s.Snapshot()
		snap.Staking = &st
	}
	if v := c.coordinator.Vesting(); v != nil {
		st := v.Snapshot()
		snap.Vesting = &st
	}
	return snap
}

// RestoreFromSnapshot restores the core's in-memory state. Ledgers must be
// registered with the same versions they had when the snapshot was taken;
// pools added at runtime are registered again first.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg := c.coordinator.Registry()

	for version, specs := range snap.Pools {
		l, err := reg.Get(version)
		if err != nil {
			return fmt.Errorf("restore pools: %w", err)
		}
		known := make(map[string]bool)
		for _, id := range l.PoolIDs() {
			known[id] = true
		}
		for _, spec := range specs {
			if known[spec.ID] {
				continue
			}
			conv, err := oracle.ConverterByName(spec.Converter)
			if err != nil {
				return fmt.Errorf("restore pool %s: %w", spec.ID, err)
			}
			if err := l.AddPool(ledger.PoolDescriptor{ID: spec.ID, Converter: conv}); err != nil {
				return fmt.Errorf("restore pool %s: %w", spec.ID, err)
			}
		}
		c.pools[version] = append([]PoolSpec(nil), specs...)
	}

	for version, st := range snap.Rewards {
		l, err := reg.Get(version)
		if err != nil {
			return fmt.Errorf("restore rewards: %w", err)
		}
		if err := l.Restore(st); err != nil {
			return err
		}
	}
	if snap.ActiveVersion != "" {
		if err := reg.Restore(snap.ActiveVersion); err != nil {
			return err
		}
	}
	if snap.Staking != nil {
		s := c.coordinator.Staking()
		if s == nil {
			return fmt.Errorf("restore staking: %w", errNotConfigured)
		}
		if err := s.Restore(*snap.Staking); err != nil {
			return err
		}
	}
	if snap.Vesting != nil {
		v := c.coordinator.Vesting()
		if v == nil {
			return fmt.Errorf("restore vesting: %w", errNotConfigured)
		}
		if err := v.Restore(*snap.Vesting); err != nil {
			return err
		}
	}

	c.board.Restore(snap.Oracle)
	c.balanceTracker.Restore(snap.Balances)
	for partition, next := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, next)
	}
	c.idempotency.Warm(snap.IdempotencyKeys)

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	c.journalGen.SetSequence(c.sequence)
	return nil
}
