package query_test

import (
	"context"
	"testing"
	"time"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/event"
	"rewardengine/internal/ledger"
	"rewardengine/internal/persistence"
	"rewardengine/internal/projection"
	"rewardengine/internal/query"
	"rewardengine/internal/testutil"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var carol = uuid.MustParse("880e8400-e29b-41d4-a716-446655440003")

func TestQueryService_BalancesHistoryAndIntegrity(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// A share mint, then a 1000-token claim with a 165 burned fee.
	mint := &event.EventEnvelope{
		Sequence:       0,
		IdempotencyKey: "0xa:0",
		EventType:      event.EventTypeSharesMinted,
		Partition:      "shares",
		At:             event.Point{Height: 10},
		Payload:        []byte(`{}`),
	}
	mint.StateHash[0] = 1

	res := ledger.ClaimResult{
		Account:   carol,
		Requested: sdkmath.NewInt(1000),
		Net:       sdkmath.NewInt(835),
		Fee:       sdkmath.NewInt(165),
		Unit:      20,
	}
	batch, err := ledger.NewJournalGenerator(1, nil).GenerateClaim("claim-1", "v1", res)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claim := &event.EventEnvelope{
		Sequence:       1,
		IdempotencyKey: "claim-1",
		EventType:      event.EventTypeRewardClaimRequested,
		Partition:      "claims",
		At:             event.Point{Height: 20},
		SourceSequence: 1,
		Payload:        []byte(`{}`),
		PrevHash:       mint.StateHash,
	}
	claim.StateHash[0] = 2
	receipts := []coordinator.Receipt{{Kind: coordinator.KindReward, Program: "v1", ClaimResult: res}}

	logCh := make(chan persistence.LogEntry, 2)
	logCh <- persistence.NewLogEntry(mint, nil)
	logCh <- persistence.NewLogEntry(claim, batch)
	close(logCh)
	if err := persistence.NewPersistenceWorker(db, logCh, 10, time.Millisecond, nil, zerolog.Nop()).Run(ctx); err != nil {
		t.Fatalf("persist: %v", err)
	}

	projCh := make(chan projection.ProjectionOutput, 2)
	projCh <- projection.NewProjectionOutput(mint, nil, nil)
	projCh <- projection.NewProjectionOutput(claim, batch, receipts)
	close(projCh)
	if err := projection.NewProjectionWorker(db, nil, projCh, nil, zerolog.Nop()).Run(ctx); err != nil {
		t.Fatalf("project: %v", err)
	}

	qs := query.NewQueryService(db)

	// ============================================================================
	// Balances
	// ============================================================================

	balances, err := qs.GetAccountBalances(ctx, carol)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.AsOfSequence != 1 {
		t.Errorf("as of: got %d, want 1", balances.AsOfSequence)
	}
	if len(balances.Balances) != 1 || balances.Balances[0].Balance != "835" || balances.Balances[0].Program != "v1" {
		t.Fatalf("got %+v", balances.Balances)
	}

	// ============================================================================
	// Journals
	// ============================================================================

	history, err := qs.GetJournalHistory(ctx, carol, 10, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d journals, want the payout only", len(history))
	}
	if history[0].Amount != "835" || history[0].JournalType != "claim_payout" || history[0].Sequence != 1 {
		t.Errorf("got %+v", history[0])
	}

	before := int64(1)
	older, err := qs.GetJournalHistory(ctx, carol, 10, &before)
	if err != nil || len(older) != 0 {
		t.Errorf("paging: got %d entries (%v), want none", len(older), err)
	}

	// ============================================================================
	// Integrity
	// ============================================================================

	report, err := qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.IsHealthy {
		t.Errorf("got %+v, want healthy", report)
	}

	if _, err := db.ExecContext(ctx, `UPDATE projections.balances SET balance = balance + 1 WHERE account_path LIKE 'user:%'`); err != nil {
		t.Fatal(err)
	}
	report, err = qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.IsHealthy || len(report.UnbalancedPrograms) != 1 || report.UnbalancedPrograms[0].Imbalance != "1" {
		t.Errorf("got %+v, want v1 off by one", report)
	}
}
