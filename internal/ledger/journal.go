package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeClaimPayout JournalType = iota
	JournalTypeClaimFee
	JournalTypeClaimFeeBurn
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeClaimPayout:
		return "claim_payout"
	case JournalTypeClaimFee:
		return "claim_fee"
	case JournalTypeClaimFeeBurn:
		return "claim_fee_burn"
	}
	return "unknown"
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Program       Program     // Ledger the tokens came from
	Amount        sdkmath.Int // Token base units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Unit          uint64      // Height or timestamp of the claim
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Unit     uint64
	Journals []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit, so every
// entry is balanced on its own and so is the batch.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount.IsNil() || !j.Amount.IsPositive() {
			return fmt.Errorf("journal %s has non-positive amount: %s", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.Program != j.Program || j.CreditAccount.Program != j.Program {
			return fmt.Errorf("journal %s crosses programs", j.JournalID)
		}
	}

	return nil
}
