package ledger

import (
	"fmt"
	"sort"

	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory payout balances. The emission reserve
// goes negative by exactly what was paid out and burned, so every program
// sums to zero.
type BalanceTracker struct {
	balances map[AccountKey]sdkmath.Int
}

// BalanceEntry is one account balance, used for snapshots.
type BalanceEntry struct {
	Key    AccountKey  `json:"key"`
	Amount sdkmath.Int `json:"amount"`
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]sdkmath.Int),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) error {
	debit, err := fpmath.Add(bt.GetBalance(j.DebitAccount), j.Amount)
	if err != nil {
		return fmt.Errorf("debit %s: %w", j.DebitAccount.AccountPath(), err)
	}
	credit, err := fpmath.SignedSub(bt.GetBalance(j.CreditAccount), j.Amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", j.CreditAccount.AccountPath(), err)
	}
	bt.balances[j.DebitAccount] = debit
	bt.balances[j.CreditAccount] = credit
	return nil
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		if err := bt.ApplyJournal(j); err != nil {
			return err
		}
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) sdkmath.Int {
	if b, ok := bt.balances[key]; ok {
		return b
	}
	return fpmath.Zero()
}

// GetUserPaid returns the net rewards paid to a user from a program
func (bt *BalanceTracker) GetUserPaid(userID uuid.UUID, program Program) sdkmath.Int {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeRewardsPaid, program))
}

// GetFeesReceived returns claim fees routed to a fee collector account
func (bt *BalanceTracker) GetFeesReceived(collector uuid.UUID, program Program) sdkmath.Int {
	return bt.GetBalance(NewUserAccountKey(collector, SubTypeFeesReceived, program))
}

// GetBurned returns claim fees that were not routed anywhere
func (bt *BalanceTracker) GetBurned(program Program) sdkmath.Int {
	return bt.GetBalance(NewSystemAccountKey(SubTypeFeesBurned, program))
}

// GetReserveOutflow returns everything a program's reserve has released
func (bt *BalanceTracker) GetReserveOutflow(program Program) sdkmath.Int {
	return bt.GetBalance(ReserveAccount(program)).Neg()
}

// ComputeGlobalBalance sums all account balances per program (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() (map[Program]sdkmath.Int, error) {
	totals := make(map[Program]sdkmath.Int)

	for key, balance := range bt.balances {
		sum, err := fpmath.Add(fpmath.OrZero(totals[key.Program]), balance)
		if err != nil {
			return nil, err
		}
		totals[key.Program] = sum
	}

	return totals, nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance.IsNegative() {
		return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), balance)
	}
	return nil
}

// Entries returns every balance sorted by account path.
func (bt *BalanceTracker) Entries() []BalanceEntry {
	out := make([]BalanceEntry, 0, len(bt.balances))
	for k, v := range bt.balances {
		out = append(out, BalanceEntry{Key: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.AccountPath() < out[j].Key.AccountPath()
	})
	return out
}

// Restore replaces all balances.
func (bt *BalanceTracker) Restore(entries []BalanceEntry) {
	bt.balances = make(map[AccountKey]sdkmath.Int, len(entries))
	for _, e := range entries {
		bt.balances[e.Key] = fpmath.OrZero(e.Amount)
	}
}
