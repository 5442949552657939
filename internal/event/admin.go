// internal/event/admin.go
package event

import "github.com/google/uuid"

// LedgerCutover freezes the active reward ledger and activates Version.
type LedgerCutover struct {
	ChangeID uuid.UUID `json:"change_id"`
	Version  string    `json:"version"`
	At       Point     `json:"at"`
	Sequence int64     `json:"sequence"`
}

func (e *LedgerCutover) IdempotencyKey() string {
	return e.ChangeID.String()
}

func (e *LedgerCutover) EventType() EventType {
	return EventTypeLedgerCutover
}

func (e *LedgerCutover) Partition() string {
	return "admin"
}

func (e *LedgerCutover) SourceSequence() int64 {
	return e.Sequence
}

func (e *LedgerCutover) Position() Point {
	return e.At
}

// PoolAdded registers a pool on a reward ledger version. An empty Converter
// means the fund balance already is the weight.
type PoolAdded struct {
	ChangeID  uuid.UUID `json:"change_id"`
	Version   string    `json:"version"`
	Pool      string    `json:"pool"`
	Converter string    `json:"converter,omitempty"`
	At        Point     `json:"at"`
	Sequence  int64     `json:"sequence"`
}

func (e *PoolAdded) IdempotencyKey() string {
	return e.ChangeID.String()
}

func (e *PoolAdded) EventType() EventType {
	return EventTypePoolAdded
}

func (e *PoolAdded) Partition() string {
	return "admin"
}

func (e *PoolAdded) SourceSequence() int64 {
	return e.Sequence
}

func (e *PoolAdded) Position() Point {
	return e.At
}
