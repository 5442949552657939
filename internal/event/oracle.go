// internal/event/oracle.go
package event

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Oracle events share one partition per pool. Gaps are tolerated and stale
// readings are skipped.

type FundBalanceReported struct {
	Pool     string      `json:"pool"`
	Balance  sdkmath.Int `json:"balance"`
	At       Point       `json:"at"`
	Sequence int64       `json:"sequence"`
}

func (e *FundBalanceReported) IdempotencyKey() string {
	return fmt.Sprintf("balance:%s:%d", e.Pool, e.Sequence)
}

func (e *FundBalanceReported) EventType() EventType {
	return EventTypeFundBalanceReported
}

func (e *FundBalanceReported) Partition() string {
	return "oracle:" + e.Pool
}

func (e *FundBalanceReported) SourceSequence() int64 {
	return e.Sequence
}

func (e *FundBalanceReported) Position() Point {
	return e.At
}

type ConversionRateReported struct {
	Pool     string            `json:"pool"`
	Rate     sdkmath.LegacyDec `json:"rate"`
	At       Point             `json:"at"`
	Sequence int64             `json:"sequence"`
}

func (e *ConversionRateReported) IdempotencyKey() string {
	return fmt.Sprintf("rate:%s:%d", e.Pool, e.Sequence)
}

func (e *ConversionRateReported) EventType() EventType {
	return EventTypeConversionRateReported
}

func (e *ConversionRateReported) Partition() string {
	return "oracle:" + e.Pool
}

func (e *ConversionRateReported) SourceSequence() int64 {
	return e.Sequence
}

func (e *ConversionRateReported) Position() Point {
	return e.At
}

// OracleOutage marks a pool's readings unavailable until the next report.
type OracleOutage struct {
	Pool     string `json:"pool"`
	Reason   string `json:"reason,omitempty"`
	At       Point  `json:"at"`
	Sequence int64  `json:"sequence"`
}

func (e *OracleOutage) IdempotencyKey() string {
	return fmt.Sprintf("outage:%s:%d", e.Pool, e.Sequence)
}

func (e *OracleOutage) EventType() EventType {
	return EventTypeOracleOutage
}

func (e *OracleOutage) Partition() string {
	return "oracle:" + e.Pool
}

func (e *OracleOutage) SourceSequence() int64 {
	return e.Sequence
}

func (e *OracleOutage) Position() Point {
	return e.At
}

// IsOracle reports whether an event belongs to a gap-tolerant oracle partition.
func IsOracle(et EventType) bool {
	switch et {
	case EventTypeFundBalanceReported, EventTypeConversionRateReported, EventTypeOracleOutage:
		return true
	}
	return false
}
