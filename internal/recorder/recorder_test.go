package recorder_test

import (
	"path/filepath"
	"testing"

	"rewardengine/internal/recorder"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var alice = uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")

func openRecorder(t *testing.T) *recorder.SQLiteRecorder {
	t.Helper()
	r, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "claims.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func claim(seq int64, program string, net int64) *recorder.ClaimRecord {
	return &recorder.ClaimRecord{
		Sequence:  seq,
		ClaimRef:  "claim-" + program,
		Kind:      "reward",
		Program:   program,
		Account:   alice,
		Requested: sdkmath.NewInt(net + 10),
		Net:       sdkmath.NewInt(net),
		Fee:       sdkmath.NewInt(10),
		Unit:      uint64(100 + seq),
	}
}

func TestSQLiteRecorder_ClaimsByAccountNewestFirst(t *testing.T) {
	r := openRecorder(t)

	require.NoError(t, r.RecordClaim(claim(3, "v1", 90)))
	require.NoError(t, r.RecordClaim(claim(8, "v2", 40)))

	got, err := r.ClaimsByAccount(alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(8), got[0].Sequence)
	require.Equal(t, "v2", got[0].Program)
	require.True(t, got[0].Net.Equal(sdkmath.NewInt(40)))
	require.True(t, got[1].Requested.Equal(sdkmath.NewInt(100)))
	require.Equal(t, uint64(103), got[1].Unit)

	limited, err := r.ClaimsByAccount(alice, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := r.ClaimsByAccount(uuid.New(), 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLiteRecorder_IgnoresRepeatedClaim(t *testing.T) {
	r := openRecorder(t)

	require.NoError(t, r.RecordClaim(claim(3, "v1", 90)))
	require.NoError(t, r.RecordClaim(claim(3, "v1", 90)))

	got, err := r.ClaimsByAccount(alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSQLiteRecorder_LargeAmountsSurvive(t *testing.T) {
	r := openRecorder(t)

	big, ok := sdkmath.NewIntFromString("445439067980500266694036")
	require.True(t, ok)
	rec := claim(1, "staking", 0)
	rec.Net = big
	require.NoError(t, r.RecordClaim(rec))

	got, err := r.ClaimsByAccount(alice, 1)
	require.NoError(t, err)
	require.Equal(t, "445439067980500266694036", got[0].Net.String())
}

func TestSQLiteRecorder_RecordRejection(t *testing.T) {
	r := openRecorder(t)
	rec := &recorder.RejectionRecord{Sequence: 4, EventType: "StakingClaimRequested", Key: "c1", Reason: "insufficient", Height: 12}
	require.NoError(t, r.RecordRejection(rec))
	require.NoError(t, r.RecordRejection(rec))
}

func TestNoopRecorder(t *testing.T) {
	var r recorder.Recorder = recorder.NewNoopRecorder()
	require.NoError(t, r.RecordClaim(claim(1, "v1", 1)))
	got, err := r.ClaimsByAccount(alice, 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, r.Close())
}
