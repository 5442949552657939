package core

import (
	"fmt"

	"rewardengine/internal/observability"
)

// SequenceValidator validates source sequences per partition.
// Not thread-safe; only accessed from the single-threaded core.
//
// Three policies apply:
//   - strict: shares, staking, vesting and admin partitions need exactly
//     expected, gaps and reordering are rejected
//   - nonce: claim partitions need anything >= expected, gaps are fine
//   - oracle: stale readings are skipped, gaps are fine
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
	metrics         *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         metrics,
	}
}

// ValidateSequence checks strict source sequence ordering
func (sv *SequenceValidator) ValidateSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		sv.recordOutOfOrder(partition)
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.recordGap(partition)
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidateNonce accepts any sequence at or above the expected one. A claim
// client may skip nonces but never reuse one.
func (sv *SequenceValidator) ValidateNonce(partition string, nonce int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]
	if nonce < expected {
		if isDuplicate {
			return nil
		}
		sv.recordOutOfOrder(partition)
		return fmt.Errorf("reused nonce: partition=%s, expected>=%d, got=%d", partition, expected, nonce)
	}
	if nonce > expected {
		sv.recordGap(partition)
	}
	sv.expectedNextSeq[partition] = nonce + 1
	return nil
}

// ValidateOracleSequence reports whether an oracle reading is fresh. Stale
// readings are skipped without error so a late message never overwrites a
// newer value.
func (sv *SequenceValidator) ValidateOracleSequence(partition string, seq int64) bool {
	expected := sv.expectedNextSeq[partition]
	if seq < expected {
		return false
	}
	if seq > expected {
		sv.recordGap(partition)
	}
	sv.expectedNextSeq[partition] = seq + 1
	return true
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// SetExpectedSequence initializes expected sequence (used during recovery)
func (sv *SequenceValidator) SetExpectedSequence(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// Partitions copies the expectation table for snapshots.
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for p, s := range sv.expectedNextSeq {
		out[p] = s
	}
	return out
}

func (sv *SequenceValidator) recordGap(partition string) {
	if sv.metrics != nil {
		sv.metrics.EventSequenceGap.WithLabelValues(observability.PartitionKind(partition)).Inc()
	}
}

func (sv *SequenceValidator) recordOutOfOrder(partition string) {
	if sv.metrics != nil {
		sv.metrics.EventOutOfOrder.WithLabelValues(observability.PartitionKind(partition)).Inc()
	}
}
