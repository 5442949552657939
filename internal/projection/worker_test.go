package projection

import (
	"context"
	"strings"
	"testing"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/event"
	"rewardengine/internal/ledger"
	"rewardengine/internal/recorder"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memRecorder struct {
	recorder.NoopRecorder
	claims     []recorder.ClaimRecord
	rejections []recorder.RejectionRecord
}

func (m *memRecorder) RecordClaim(rec *recorder.ClaimRecord) error {
	m.claims = append(m.claims, *rec)
	return nil
}

func (m *memRecorder) RecordRejection(rec *recorder.RejectionRecord) error {
	m.rejections = append(m.rejections, *rec)
	return nil
}

var bob = uuid.MustParse("770e8400-e29b-41d4-a716-446655440002")

func paidClaim(t *testing.T) (ProjectionOutput, coordinator.Receipt) {
	t.Helper()
	res := ledger.ClaimResult{
		Account:   bob,
		Requested: sdkmath.NewInt(200),
		Net:       sdkmath.NewInt(200),
		Fee:       sdkmath.ZeroInt(),
		Unit:      40,
	}
	batch, err := ledger.NewJournalGenerator(5, nil).GenerateClaim("claim-9", "staking", res)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	receipt := coordinator.Receipt{Kind: coordinator.KindStaking, Program: "staking", ClaimResult: res}
	env := &event.EventEnvelope{
		Sequence:       5,
		IdempotencyKey: "claim-9",
		EventType:      event.EventTypeStakingClaimRequested,
		At:             event.Point{Height: 40},
	}
	return NewProjectionOutput(env, batch, []coordinator.Receipt{receipt}), receipt
}

// ============================================================================
// Outputs
// ============================================================================

func TestNewProjectionOutput_FlattensJournals(t *testing.T) {
	out, _ := paidClaim(t)
	if out.EventType != "StakingClaimRequested" || out.Key != "claim-9" || out.Height != 40 {
		t.Errorf("got %+v", out)
	}
	if len(out.Journals) != 1 {
		t.Fatalf("got %d journals, want 1 (no fee)", len(out.Journals))
	}
	j := out.Journals[0]
	if j.CreditAccount != "system:emission_reserve:staking" || j.Program != "staking" || !j.Amount.Equal(sdkmath.NewInt(200)) {
		t.Errorf("got %+v", j)
	}
}

func TestBalanceCommands(t *testing.T) {
	out, _ := paidClaim(t)
	cmds := balanceCommands(out)
	if len(cmds) != 3 {
		t.Fatalf("got %d commands, want debit, credit and watermark", len(cmds))
	}
	if cmds[0].Args[2] != "200" || cmds[1].Args[2] != "-200" {
		t.Errorf("deltas: got %v and %v", cmds[0].Args[2], cmds[1].Args[2])
	}
	if !strings.Contains(cmds[2].Query, "projections.watermark") {
		t.Errorf("last command should move the watermark")
	}

	onlyWatermark := balanceCommands(ProjectionOutput{Sequence: 3})
	if len(onlyWatermark) != 1 {
		t.Errorf("got %d commands for an event without journals", len(onlyWatermark))
	}
}

// ============================================================================
// Worker
// ============================================================================

func TestWorker_RecordsClaimsAndRejections(t *testing.T) {
	rec := &memRecorder{}
	ch := make(chan ProjectionOutput, 2)
	worker := NewProjectionWorker(nil, rec, ch, nil, zerolog.Nop())

	out, receipt := paidClaim(t)
	ch <- out
	ch <- ProjectionOutput{Sequence: 6, EventType: "VestingClaimRequested", Key: "claim-10", Rejected: true, Reason: "nothing to claim", Height: 41}
	close(ch)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if worker.LastSequence() != 6 {
		t.Errorf("last sequence: got %d, want 6", worker.LastSequence())
	}

	if len(rec.claims) != 1 {
		t.Fatalf("got %d claims, want 1", len(rec.claims))
	}
	c := rec.claims[0]
	if c.ClaimRef != "claim-9" || c.Kind != "staking" || c.Account != bob || !c.Net.Equal(receipt.Net) || c.Unit != 40 {
		t.Errorf("got %+v", c)
	}

	if len(rec.rejections) != 1 || rec.rejections[0].Reason != "nothing to claim" || rec.rejections[0].Sequence != 6 {
		t.Errorf("got %+v", rec.rejections)
	}
}
