package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from claim results
type JournalGenerator struct {
	sequence     int64
	feeCollector *uuid.UUID
}

// NewJournalGenerator returns a generator. With a nil feeCollector claim
// fees are booked as burned.
func NewJournalGenerator(startSequence int64, feeCollector *uuid.UUID) *JournalGenerator {
	return &JournalGenerator{
		sequence:     startSequence,
		feeCollector: feeCollector,
	}
}

// SetSequence realigns the generator after a snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// Payout is one committed claim on one program.
type Payout struct {
	Program Program
	Result  ClaimResult
}

// GenerateClaim creates journals for a paid claim.
// Moves funds: system:emission_reserve → user:rewards_paid (net),
// and system:emission_reserve → fee collector or system:fees_burned (fee).
func (jg *JournalGenerator) GenerateClaim(eventRef string, program Program, res ClaimResult) (*Batch, error) {
	return jg.GenerateClaims(eventRef, []Payout{{Program: program, Result: res}})
}

// GenerateClaims books several payouts of one claim request in one batch,
// e.g. a claim across every reward ledger version.
func (jg *JournalGenerator) GenerateClaims(eventRef string, payouts []Payout) (*Batch, error) {
	if len(payouts) == 0 {
		return nil, fmt.Errorf("claim %s: no payouts", eventRef)
	}
	batchID := uuid.New()

	batch := &Batch{
		BatchID:  batchID,
		EventRef: eventRef,
		Sequence: jg.sequence,
		Unit:     payouts[0].Result.Unit,
		Journals: make([]Journal, 0, 2*len(payouts)),
	}

	for _, p := range payouts {
		res := p.Result
		if !res.Requested.IsPositive() {
			return nil, fmt.Errorf("claim %s on %s: nothing requested", eventRef, p.Program)
		}
		reserve := ReserveAccount(p.Program)

		if res.Net.IsPositive() {
			batch.Journals = append(batch.Journals, Journal{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				Sequence:      jg.sequence,
				DebitAccount:  NewUserAccountKey(res.Account, SubTypeRewardsPaid, p.Program),
				CreditAccount: reserve,
				Program:       p.Program,
				Amount:        res.Net,
				JournalType:   JournalTypeClaimPayout,
				Unit:          res.Unit,
			})
		}

		if res.Fee.IsPositive() {
			debit := NewSystemAccountKey(SubTypeFeesBurned, p.Program)
			jtype := JournalTypeClaimFeeBurn
			if jg.feeCollector != nil {
				debit = NewUserAccountKey(*jg.feeCollector, SubTypeFeesReceived, p.Program)
				jtype = JournalTypeClaimFee
			}
			batch.Journals = append(batch.Journals, Journal{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				Sequence:      jg.sequence,
				DebitAccount:  debit,
				CreditAccount: reserve,
				Program:       p.Program,
				Amount:        res.Fee,
				JournalType:   jtype,
				Unit:          res.Unit,
			})
		}
	}

	jg.sequence++

	return batch, nil
}
