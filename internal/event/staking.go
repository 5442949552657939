// internal/event/staking.go
package event

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type StakeDeposited struct {
	Ref      ChainRef    `json:"ref"`
	Account  uuid.UUID   `json:"account"`
	Amount   sdkmath.Int `json:"amount"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *StakeDeposited) IdempotencyKey() string {
	return e.Ref.key()
}

func (e *StakeDeposited) EventType() EventType {
	return EventTypeStakeDeposited
}

func (e *StakeDeposited) Partition() string {
	return "staking"
}

func (e *StakeDeposited) SourceSequence() int64 {
	return e.Sequence
}

func (e *StakeDeposited) Position() Point {
	return e.At
}

type StakeWithdrawn struct {
	Ref      ChainRef    `json:"ref"`
	Account  uuid.UUID   `json:"account"`
	Amount   sdkmath.Int `json:"amount"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *StakeWithdrawn) IdempotencyKey() string {
	return e.Ref.key()
}

func (e *StakeWithdrawn) EventType() EventType {
	return EventTypeStakeWithdrawn
}

func (e *StakeWithdrawn) Partition() string {
	return "staking"
}

func (e *StakeWithdrawn) SourceSequence() int64 {
	return e.Sequence
}

func (e *StakeWithdrawn) Position() Point {
	return e.At
}
