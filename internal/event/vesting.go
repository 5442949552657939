// internal/event/vesting.go
package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// VestingAllocationSet replaces an account's total private allocation.
type VestingAllocationSet struct {
	ChangeID uuid.UUID   `json:"change_id"`
	Account  uuid.UUID   `json:"account"`
	Total    sdkmath.Int `json:"total"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *VestingAllocationSet) IdempotencyKey() string {
	return e.ChangeID.String()
}

func (e *VestingAllocationSet) EventType() EventType {
	return EventTypeVestingAllocationSet
}

func (e *VestingAllocationSet) Partition() string {
	return "vesting"
}

func (e *VestingAllocationSet) SourceSequence() int64 {
	return e.Sequence
}

func (e *VestingAllocationSet) Position() Point {
	return e.At
}
