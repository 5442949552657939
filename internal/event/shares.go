// internal/event/shares.go
package event

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// ChainRef identifies the on-chain log an event was read from.
type ChainRef struct {
	TxHash   string `json:"tx_hash"`
	LogIndex uint32 `json:"log_index"`
}

func (r ChainRef) key() string {
	return fmt.Sprintf("%s:%d", r.TxHash, r.LogIndex)
}

// SharesMinted fires the mint hook of a reward ledger version.
type SharesMinted struct {
	Ref      ChainRef    `json:"ref"`
	Version  string      `json:"version"`
	Pool     string      `json:"pool"`
	Account  uuid.UUID   `json:"account"`
	Amount   sdkmath.Int `json:"amount"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *SharesMinted) IdempotencyKey() string {
	return e.Ref.key()
}

func (e *SharesMinted) EventType() EventType {
	return EventTypeSharesMinted
}

func (e *SharesMinted) Partition() string {
	return "shares:" + e.Version
}

func (e *SharesMinted) SourceSequence() int64 {
	return e.Sequence
}

func (e *SharesMinted) Position() Point {
	return e.At
}

type SharesBurned struct {
	Ref      ChainRef    `json:"ref"`
	Version  string      `json:"version"`
	Pool     string      `json:"pool"`
	Account  uuid.UUID   `json:"account"`
	Amount   sdkmath.Int `json:"amount"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *SharesBurned) IdempotencyKey() string {
	return e.Ref.key()
}

func (e *SharesBurned) EventType() EventType {
	return EventTypeSharesBurned
}

func (e *SharesBurned) Partition() string {
	return "shares:" + e.Version
}

func (e *SharesBurned) SourceSequence() int64 {
	return e.Sequence
}

func (e *SharesBurned) Position() Point {
	return e.At
}

type SharesTransferred struct {
	Ref      ChainRef    `json:"ref"`
	Version  string      `json:"version"`
	Pool     string      `json:"pool"`
	From     uuid.UUID   `json:"from"`
	To       uuid.UUID   `json:"to"`
	Amount   sdkmath.Int `json:"amount"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *SharesTransferred) IdempotencyKey() string {
	return e.Ref.key()
}

func (e *SharesTransferred) EventType() EventType {
	return EventTypeSharesTransferred
}

func (e *SharesTransferred) Partition() string {
	return "shares:" + e.Version
}

func (e *SharesTransferred) SourceSequence() int64 {
	return e.Sequence
}

func (e *SharesTransferred) Position() Point {
	return e.At
}
