package event

import (
	"encoding/json"
	"fmt"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeSharesMinted
	EventTypeSharesBurned
	EventTypeSharesTransferred
	EventTypeStakeDeposited
	EventTypeStakeWithdrawn
	EventTypeVestingAllocationSet
	EventTypeFundBalanceReported
	EventTypeConversionRateReported
	EventTypeOracleOutage
	EventTypeRewardClaimRequested
	EventTypeStakingClaimRequested
	EventTypeVestingClaimRequested
	EventTypeLedgerCutover
	EventTypePoolAdded
)

// Point is the chain position an input was observed at. Reward and staking
// ledgers run on Height, vesting ledgers on Timestamp.
type Point struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"` // unix seconds
}

// UnitKind selects which coordinate of a Point drives a ledger.
type UnitKind uint8

const (
	UnitHeight UnitKind = iota
	UnitTimestamp
)

func (p Point) Unit(k UnitKind) uint64 {
	if k == UnitTimestamp {
		return p.Timestamp
	}
	return p.Height
}

func ParseUnitKind(s string) (UnitKind, error) {
	switch s {
	case "height", "block", "":
		return UnitHeight, nil
	case "timestamp", "time":
		return UnitTimestamp, nil
	}
	return 0, fmt.Errorf("unknown unit kind %q", s)
}

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Ordering partition ("shares:v1", "oracle:eth", ...)
	Partition string

	// Versioned input position (NOT wall-clock)
	At Point

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// Rejected events are logged so replay consumes the same source
	// sequences, but they changed no state.
	Rejected bool
	Reason   string

	// JSON-encoded claim receipts for claim events; replay commits exactly
	// these instead of re-running the request.
	Outcome []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the ordering partition for source sequences
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Position returns the versioned chain position of the input
	Position() Point
}

var names = map[EventType]string{
	EventTypeSharesMinted:           "SharesMinted",
	EventTypeSharesBurned:           "SharesBurned",
	EventTypeSharesTransferred:      "SharesTransferred",
	EventTypeStakeDeposited:         "StakeDeposited",
	EventTypeStakeWithdrawn:         "StakeWithdrawn",
	EventTypeVestingAllocationSet:   "VestingAllocationSet",
	EventTypeFundBalanceReported:    "FundBalanceReported",
	EventTypeConversionRateReported: "ConversionRateReported",
	EventTypeOracleOutage:           "OracleOutage",
	EventTypeRewardClaimRequested:   "RewardClaimRequested",
	EventTypeStakingClaimRequested:  "StakingClaimRequested",
	EventTypeVestingClaimRequested:  "VestingClaimRequested",
	EventTypeLedgerCutover:          "LedgerCutover",
	EventTypePoolAdded:              "PoolAdded",
}

func (et EventType) String() string {
	if n, ok := names[et]; ok {
		return n
	}
	return "Unknown"
}

// ParseEventType is the inverse of String.
func ParseEventType(s string) (EventType, bool) {
	for et, n := range names {
		if n == s {
			return et, true
		}
	}
	return EventTypeUnknown, false
}

// New returns an empty event value for a type, ready for json.Unmarshal.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeSharesMinted:
		return &SharesMinted{}, nil
	case EventTypeSharesBurned:
		return &SharesBurned{}, nil
	case EventTypeSharesTransferred:
		return &SharesTransferred{}, nil
	case EventTypeStakeDeposited:
		return &StakeDeposited{}, nil
	case EventTypeStakeWithdrawn:
		return &StakeWithdrawn{}, nil
	case EventTypeVestingAllocationSet:
		return &VestingAllocationSet{}, nil
	case EventTypeFundBalanceReported:
		return &FundBalanceReported{}, nil
	case EventTypeConversionRateReported:
		return &ConversionRateReported{}, nil
	case EventTypeOracleOutage:
		return &OracleOutage{}, nil
	case EventTypeRewardClaimRequested:
		return &RewardClaimRequested{}, nil
	case EventTypeStakingClaimRequested:
		return &StakingClaimRequested{}, nil
	case EventTypeVestingClaimRequested:
		return &VestingClaimRequested{}, nil
	case EventTypeLedgerCutover:
		return &LedgerCutover{}, nil
	case EventTypePoolAdded:
		return &PoolAdded{}, nil
	}
	return nil, fmt.Errorf("unknown event type %d", et)
}

// Decode rebuilds an event from a stored envelope payload.
func Decode(et EventType, payload []byte) (Event, error) {
	evt, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}
