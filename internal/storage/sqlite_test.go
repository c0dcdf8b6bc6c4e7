package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	run := StoredRun{
		RunID:           "run1",
		TaskSetHash:     "hash1",
		Timestamp:       now,
		Duration:        5 * time.Minute,
		OverallPassRate: 80.0,
		TotalTokens:     1000,
		TotalCost:       0.42,
		ModelStats: []ModelStatPoint{
			{VariantID: "V1", Timestamp: now, PassRate: 90, AvgScore: 95, AvgAttempts: 1.2, TotalTokens: 500, TotalCost: 0.2},
			{VariantID: "V2", Timestamp: now, PassRate: 70, AvgScore: 75, AvgAttempts: 1.5, TotalTokens: 500, TotalCost: 0.22},
		},
	}
	require.NoError(t, s.SaveRun(run))

	got, err := s.LatestRun("hash1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run1", got.RunID)
	assert.Equal(t, 80.0, got.OverallPassRate)
	require.Len(t, got.ModelStats, 2)
	assert.Equal(t, "V1", got.ModelStats[0].VariantID)
}

func TestLatestRun_NoneReturnsNil(t *testing.T) {
	s := newTestStorage(t)
	got, err := s.LatestRun("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestRun_PicksMostRecentByTimestamp(t *testing.T) {
	s := newTestStorage(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(StoredRun{RunID: "r1", TaskSetHash: "h", Timestamp: older}))
	require.NoError(t, s.SaveRun(StoredRun{RunID: "r2", TaskSetHash: "h", Timestamp: newer}))

	got, err := s.LatestRun("h")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r2", got.RunID)
}

func TestHistory_OrderedOldestFirst(t *testing.T) {
	s := newTestStorage(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(StoredRun{
		RunID: "r1", TaskSetHash: "h", Timestamp: t1,
		ModelStats: []ModelStatPoint{{VariantID: "V1", Timestamp: t1, PassRate: 50}},
	}))
	require.NoError(t, s.SaveRun(StoredRun{
		RunID: "r2", TaskSetHash: "h", Timestamp: t2,
		ModelStats: []ModelStatPoint{{VariantID: "V1", Timestamp: t2, PassRate: 75}},
	}))

	history, err := s.History("V1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 50.0, history[0].PassRate)
	assert.Equal(t, 75.0, history[1].PassRate)
}

func TestHistory_RespectsLimit(t *testing.T) {
	s := newTestStorage(t)
	for i := 0; i < 5; i++ {
		ts := time.Date(2026, 1, i+1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveRun(StoredRun{
			RunID: "r", TaskSetHash: "h", Timestamp: ts,
			ModelStats: []ModelStatPoint{{VariantID: "V1", Timestamp: ts, PassRate: float64(i)}},
		}))
	}
	history, err := s.History("V1", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCleanup_RemovesOldRuns(t *testing.T) {
	s := newTestStorage(t)
	old := time.Now().AddDate(0, 0, -30)
	recent := time.Now()

	require.NoError(t, s.SaveRun(StoredRun{RunID: "old", TaskSetHash: "h", Timestamp: old}))
	require.NoError(t, s.SaveRun(StoredRun{RunID: "recent", TaskSetHash: "h2", Timestamp: recent}))

	require.NoError(t, s.Cleanup(7))

	got, err := s.LatestRun("h")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.LatestRun("h2")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
