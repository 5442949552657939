package oracle_test

import (
	"errors"
	"testing"

	fpmath "rewardengine/internal/math"
	"rewardengine/internal/oracle"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestBoard_UnreportedPoolFails(t *testing.T) {
	b := oracle.NewBoard()
	_, err := b.FundBalance("eth")
	require.ErrorIs(t, err, oracle.ErrOracleUnavailable)

	_, err = oracle.Weight(b, "eth", oracle.Identity{})
	require.ErrorIs(t, err, oracle.ErrOracleUnavailable)
}

func TestBoard_ReportAndMarkUnavailable(t *testing.T) {
	b := oracle.NewBoard()
	b.ReportBalance("stable", sdkmath.NewInt(1_000), 10)

	w, err := oracle.Weight(b, "stable", nil)
	require.NoError(t, err)
	require.Equal(t, "1000", w.String())

	b.MarkUnavailable("stable")
	_, err = oracle.Weight(b, "stable", nil)
	require.True(t, errors.Is(err, oracle.ErrOracleUnavailable))

	// A fresh report clears the outage.
	b.ReportBalance("stable", sdkmath.NewInt(2_000), 11)
	w, err = oracle.Weight(b, "stable", nil)
	require.NoError(t, err)
	require.Equal(t, "2000", w.String())
}

func TestPriceConverted(t *testing.T) {
	b := oracle.NewBoard()
	b.ReportBalance("eth", fpmath.MustParse("2000000000000000000"), 1)

	// Balance without a rate cannot be weighted.
	_, err := oracle.Weight(b, "eth", oracle.PriceConverted{})
	require.ErrorIs(t, err, oracle.ErrOracleUnavailable)

	// 1500.5 at 1e8 precision.
	b.ReportRate("eth", fpmath.RateToDec(sdkmath.NewInt(150_050_000_000), fpmath.RateConfig), 1)
	w, err := oracle.Weight(b, "eth", oracle.PriceConverted{})
	require.NoError(t, err)
	require.Equal(t, "3001000000000000000000", w.String())
}

func TestBoard_SnapshotRestore(t *testing.T) {
	b := oracle.NewBoard()
	b.ReportBalance("a", sdkmath.NewInt(5), 1)
	b.ReportRate("b", sdkmath.LegacyOneDec(), 2)

	snap := b.Snapshot()
	restored := oracle.NewBoard()
	restored.Restore(snap)

	require.Equal(t, []string{"a", "b"}, restored.Pools())
	bal, err := restored.FundBalance("a")
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.Int64())
	_, err = restored.FundBalance("b")
	require.ErrorIs(t, err, oracle.ErrOracleUnavailable)
}

func TestConverterByName(t *testing.T) {
	for _, name := range []string{"", "identity", "price"} {
		_, err := oracle.ConverterByName(name)
		require.NoError(t, err, name)
	}
	_, err := oracle.ConverterByName("oracle-of-delphi")
	require.Error(t, err)
}
