package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// InvariantValidator checks payout invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserPaidNonNegative checks a user's paid balance >= 0
func (v *InvariantValidator) ValidateUserPaidNonNegative(userID uuid.UUID, program Program) error {
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeRewardsPaid, program))
}

// ValidateReserveWithinBudget verifies a program never released more than
// the pre-fee total its ledger recorded as claimed.
func (v *InvariantValidator) ValidateReserveWithinBudget(program Program, claimed sdkmath.Int) error {
	outflow := v.tracker.GetReserveOutflow(program)
	if outflow.IsNegative() {
		return fmt.Errorf("reserve for %s has positive balance: %s", program, outflow.Neg())
	}
	if outflow.GT(claimed) {
		return fmt.Errorf("reserve for %s released %s, ledger claimed %s", program, outflow, claimed)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals, err := v.tracker.ComputeGlobalBalance()
	if err != nil {
		return err
	}

	for program, total := range totals {
		if !total.IsZero() {
			return fmt.Errorf("global balance for %s is non-zero: %s", program, total)
		}
	}

	return nil
}
