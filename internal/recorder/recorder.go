package recorder

import (
	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// ClaimRecord is one paid claim on one program.
type ClaimRecord struct {
	Sequence  int64       `json:"sequence"`
	ClaimRef  string      `json:"claim_ref"` // idempotency key of the claim event
	Kind      string      `json:"kind"`      // "reward", "staking" or "vesting"
	Program   string      `json:"program"`
	Account   uuid.UUID   `json:"account"`
	Requested sdkmath.Int `json:"requested"`
	Net       sdkmath.Int `json:"net"`
	Fee       sdkmath.Int `json:"fee"`
	Unit      uint64      `json:"unit"`
}

// RejectionRecord is a logged event that changed no state.
type RejectionRecord struct {
	Sequence  int64  `json:"sequence"`
	EventType string `json:"event_type"`
	Key       string `json:"key"`
	Reason    string `json:"reason"`
	Height    uint64 `json:"height"`
}

// Recorder keeps the queryable claim history.
type Recorder interface {
	RecordClaim(rec *ClaimRecord) error
	RecordRejection(rec *RejectionRecord) error
	ClaimsByAccount(account uuid.UUID, limit int) ([]ClaimRecord, error)
	Close() error
}
