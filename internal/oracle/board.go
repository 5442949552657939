package oracle

import (
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// Reading is the last value reported for a pool.
type Reading struct {
	Balance     sdkmath.Int       `json:"balance"`
	Rate        sdkmath.LegacyDec `json:"rate"`
	HasBalance  bool              `json:"has_balance"`
	HasRate     bool              `json:"has_rate"`
	Unavailable bool              `json:"unavailable"`
	ReportedAt  uint64            `json:"reported_at"`
}

// Board is a PoolWeightOracle backed by the latest values pushed by fund
// managers and price feeds. A pool that never reported, or that was marked
// unavailable, fails reads with ErrOracleUnavailable.
type Board struct {
	mu       sync.RWMutex
	readings map[string]*Reading
}

func NewBoard() *Board {
	return &Board{readings: make(map[string]*Reading)}
}

func (b *Board) reading(poolID string) *Reading {
	r, ok := b.readings[poolID]
	if !ok {
		r = &Reading{}
		b.readings[poolID] = r
	}
	return r
}

// ReportBalance records a fund balance for a pool.
func (b *Board) ReportBalance(poolID string, balance sdkmath.Int, unit uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.reading(poolID)
	r.Balance = balance
	r.HasBalance = true
	r.Unavailable = false
	r.ReportedAt = unit
}

// ReportRate records a conversion rate for a pool.
func (b *Board) ReportRate(poolID string, rate sdkmath.LegacyDec, unit uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.reading(poolID)
	r.Rate = rate
	r.HasRate = true
	r.ReportedAt = unit
}

// MarkUnavailable makes reads for a pool fail until it reports again.
func (b *Board) MarkUnavailable(poolID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reading(poolID).Unavailable = true
}

func (b *Board) FundBalance(poolID string) (sdkmath.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.readings[poolID]
	if !ok || !r.HasBalance || r.Unavailable {
		return sdkmath.Int{}, fmt.Errorf("%w: no fund balance for pool %s", ErrOracleUnavailable, poolID)
	}
	return r.Balance, nil
}

func (b *Board) ConversionRate(poolID string) (sdkmath.LegacyDec, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.readings[poolID]
	if !ok || !r.HasRate || r.Unavailable {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: no conversion rate for pool %s", ErrOracleUnavailable, poolID)
	}
	return r.Rate, nil
}

// Snapshot copies all readings.
func (b *Board) Snapshot() map[string]Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Reading, len(b.readings))
	for id, r := range b.readings {
		out[id] = *r
	}
	return out
}

// Restore replaces all readings.
func (b *Board) Restore(readings map[string]Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings = make(map[string]*Reading, len(readings))
	for id, r := range readings {
		r := r
		b.readings[id] = &r
	}
}

// Pools returns the ids of every pool that has reported, sorted.
func (b *Board) Pools() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.readings))
	for id := range b.readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
