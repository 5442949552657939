package persistence_test

import (
	"context"
	"testing"
	"time"

	"rewardengine/internal/core"
	"rewardengine/internal/event"
	"rewardengine/internal/persistence"
	"rewardengine/internal/testutil"

	"github.com/rs/zerolog"
)

func envelope(seq int64, key string, rejected bool) *event.EventEnvelope {
	env := &event.EventEnvelope{
		Sequence:       seq,
		IdempotencyKey: key,
		EventType:      event.EventTypeStakeDeposited,
		Partition:      "staking",
		At:             event.Point{Height: uint64(100 + seq)},
		SourceSequence: seq,
		Payload:        []byte(`{"amount":"5"}`),
		Rejected:       rejected,
	}
	env.StateHash[0] = byte(seq)
	return env
}

func TestWorker_PersistsAndReloadsEvents(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ch := make(chan persistence.LogEntry, 4)
	worker := persistence.NewPersistenceWorker(db, ch, 2, 5*time.Millisecond, nil, zerolog.Nop())

	ch <- persistence.NewLogEntry(envelope(0, "0xa:0", false), nil)
	ch <- persistence.NewLogEntry(envelope(1, "0xa:1", true), nil)
	ch <- persistence.NewLogEntry(envelope(2, "0xa:2", false), nil)
	close(ch)
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	mgr := persistence.NewSnapshotManager(db, zerolog.Nop())
	ctx := context.Background()

	latest, err := mgr.GetLatestSequence(ctx)
	if err != nil || latest != 2 {
		t.Fatalf("latest: got %d (%v), want 2", latest, err)
	}

	envs, err := mgr.LoadEventsFrom(ctx, 1, 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(envs) != 2 || envs[0].Sequence != 1 || !envs[0].Rejected || envs[1].Rejected {
		t.Fatalf("got %+v", envs)
	}
	if envs[1].StateHash[0] != 2 || envs[1].At.Height != 102 {
		t.Errorf("row fields lost: %+v", envs[1])
	}

	checker := persistence.NewPostgresIdempotencyChecker(db)
	if dup, err := checker.IsDuplicate("StakeDeposited", "0xa:1"); err != nil || !dup {
		t.Errorf("rejected event key should be taken: dup=%v err=%v", dup, err)
	}
	if dup, _ := checker.IsDuplicate("StakeDeposited", "0xa:9"); dup {
		t.Error("unknown key reported as duplicate")
	}
}

func TestSnapshotManager_OnlyVerifiedSnapshotsLoad(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mgr := persistence.NewSnapshotManager(db, zerolog.Nop())

	if snap, err := mgr.LoadLatestSnapshot(ctx); err != nil || snap != nil {
		t.Fatalf("cold start: got %v (%v), want nil", snap, err)
	}

	snap := &core.SnapshotState{Sequence: 41, ActiveVersion: "v2", SequenceState: map[string]int64{"staking": 12}}
	snap.StateHash[5] = 9
	size, err := mgr.SaveSnapshot(ctx, snap)
	if err != nil || size == 0 {
		t.Fatalf("save: size=%d err=%v", size, err)
	}

	if got, _ := mgr.LoadLatestSnapshot(ctx); got != nil {
		t.Fatal("unverified snapshot was loaded")
	}
	if err := mgr.MarkVerified(ctx, 41); err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, err := mgr.LoadLatestSnapshot(ctx)
	if err != nil || got == nil {
		t.Fatalf("load: %v", err)
	}
	if got.Sequence != 41 || got.ActiveVersion != "v2" || got.StateHash != snap.StateHash || got.SequenceState["staking"] != 12 {
		t.Errorf("got %+v", got)
	}
}
