package registry

import (
	"errors"
	"fmt"
	"sync"

	"rewardengine/internal/ledger"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownVersion   = errors.New("unknown ledger version")
	ErrDuplicateVersion = errors.New("duplicate ledger version")
)

// Entry is one registered reward ledger.
type Entry struct {
	Version string
	Ledger  *ledger.RewardLedger
}

// Registry is an append-only list of reward ledger versions with one active
// version receiving new accrual. Versions are never removed, so balances of
// superseded ledgers stay claimable.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
	active  int
	logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Registry {
	return &Registry{
		index:  make(map[string]int),
		active: -1,
		logger: logger,
	}
}

// Register appends a version. The first registered version becomes active.
func (r *Registry) Register(version string, l *ledger.RewardLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l == nil {
		return fmt.Errorf("register %s: nil ledger", version)
	}
	if _, ok := r.index[version]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
	}
	r.index[version] = len(r.entries)
	r.entries = append(r.entries, Entry{Version: version, Ledger: l})
	if r.active < 0 {
		r.active = 0
	}
	return nil
}

func (r *Registry) Get(version string) (*ledger.RewardLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	return r.entries[i].Ledger, nil
}

// Active returns the version currently receiving share events.
func (r *Registry) Active() (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active < 0 {
		return Entry{}, fmt.Errorf("%w: no version registered", ErrUnknownVersion)
	}
	return r.entries[r.active], nil
}

// Versions lists all versions in registration order.
func (r *Registry) Versions() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Cutover freezes the active ledger at now, seeds its share book into version
// and activates it. Both ledgers serve the same pools, so holders keep earning
// from the new curve without re-minting. Cutting over to the already active
// version is a no-op.
func (r *Registry) Cutover(version string, now uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.index[version]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	if next == r.active {
		return nil
	}
	if next < r.active {
		return fmt.Errorf("cutover to %s: versions only move forward", version)
	}
	target := r.entries[next].Ledger
	if target.Frozen() {
		return fmt.Errorf("cutover to %s: %w", version, ledger.ErrLedgerFrozen)
	}
	prev := r.entries[r.active]
	book := prev.Ledger.ShareBook()
	if err := target.CheckShareBook(book); err != nil {
		return fmt.Errorf("cutover to %s: %w", version, err)
	}
	if err := prev.Ledger.Freeze(now); err != nil {
		return fmt.Errorf("cutover from %s: %w", prev.Version, err)
	}
	// A frozen ledger's book no longer changes, so a failed seed can be retried.
	if err := target.SeedShares(book, now); err != nil {
		return fmt.Errorf("cutover to %s: seed shares: %w", version, err)
	}
	r.active = next
	r.logger.Info().
		Str("from", prev.Version).
		Str("to", version).
		Int("holdings", len(book)).
		Uint64("unit", now).
		Msg("reward ledger cutover")
	return nil
}

// Restore sets the active version after a snapshot restore.
func (r *Registry) Restore(active string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[active]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVersion, active)
	}
	r.active = i
	return nil
}
