// internal/event/claim.go
package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Claim requests are ordered per account. Sequence acts as the account's
// nonce.

// RewardClaimRequested claims from one reward ledger version, or from every
// version when Version is empty. A nil Amount claims everything owed.
type RewardClaimRequested struct {
	ClaimID  uuid.UUID    `json:"claim_id"`
	Version  string       `json:"version,omitempty"`
	Account  uuid.UUID    `json:"account"`
	Amount   *sdkmath.Int `json:"amount,omitempty"`
	At       Point        `json:"at"`
	Sequence int64        `json:"sequence"`
}

func (e *RewardClaimRequested) IdempotencyKey() string {
	return e.ClaimID.String()
}

func (e *RewardClaimRequested) EventType() EventType {
	return EventTypeRewardClaimRequested
}

func (e *RewardClaimRequested) Partition() string {
	return "claims:" + e.Account.String()
}

func (e *RewardClaimRequested) SourceSequence() int64 {
	return e.Sequence
}

func (e *RewardClaimRequested) Position() Point {
	return e.At
}

type StakingClaimRequested struct {
	ClaimID  uuid.UUID    `json:"claim_id"`
	Account  uuid.UUID    `json:"account"`
	Amount   *sdkmath.Int `json:"amount,omitempty"`
	At       Point        `json:"at"`
	Sequence int64        `json:"sequence"`
}

func (e *StakingClaimRequested) IdempotencyKey() string {
	return e.ClaimID.String()
}

func (e *StakingClaimRequested) EventType() EventType {
	return EventTypeStakingClaimRequested
}

func (e *StakingClaimRequested) Partition() string {
	return "claims:" + e.Account.String()
}

func (e *StakingClaimRequested) SourceSequence() int64 {
	return e.Sequence
}

func (e *StakingClaimRequested) Position() Point {
	return e.At
}

type VestingClaimRequested struct {
	ClaimID  uuid.UUID    `json:"claim_id"`
	Account  uuid.UUID    `json:"account"`
	Amount   *sdkmath.Int `json:"amount,omitempty"`
	At       Point        `json:"at"`
	Sequence int64        `json:"sequence"`
}

func (e *VestingClaimRequested) IdempotencyKey() string {
	return e.ClaimID.String()
}

func (e *VestingClaimRequested) EventType() EventType {
	return EventTypeVestingClaimRequested
}

func (e *VestingClaimRequested) Partition() string {
	return "claims:" + e.Account.String()
}

func (e *VestingClaimRequested) SourceSequence() int64 {
	return e.Sequence
}

func (e *VestingClaimRequested) Position() Point {
	return e.At
}

// IsClaim reports whether an event is a claim request.
func IsClaim(et EventType) bool {
	switch et {
	case EventTypeRewardClaimRequested, EventTypeStakingClaimRequested, EventTypeVestingClaimRequested:
		return true
	}
	return false
}
