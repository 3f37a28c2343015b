package storage

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"hedge_copier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestActivityRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	entry := models.ActivityEntry{
		ID:         "e1",
		GroupID:    "g1",
		FollowerID: "f1",
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		EventType:  models.EventOpened,
		Symbol:     "EURUSD",
		Action:     "OPEN_POSITION",
		Volume:     0.5,
		Price:      1.1,
		LatencyMs:  42,
		Status:     models.ActivitySuccess,
	}
	require.NoError(t, s.AddActivity(entry, 100))

	entries, err := s.RecentActivity(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.GroupID, got.GroupID)
	assert.Equal(t, models.EventOpened, got.EventType)
	assert.Equal(t, models.ActivitySuccess, got.Status)
	assert.Equal(t, 0.5, got.Volume)
	assert.Equal(t, int64(42), got.LatencyMs)
}

func TestActivityPrunedToKeep(t *testing.T) {
	s := newTestStorage(t)

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		entry := models.ActivityEntry{
			ID:         fmt.Sprintf("e%d", i),
			GroupID:    "g1",
			FollowerID: "f1",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			EventType:  models.EventOpened,
			Status:     models.ActivityFailed,
		}
		require.NoError(t, s.AddActivity(entry, 5))
	}

	entries, err := s.RecentActivity(100)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	// Остаются свежайшие, свежие первыми
	assert.Equal(t, "e9", entries[0].ID)
	assert.Equal(t, "e5", entries[4].ID)
}

func TestGroupStatsRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	groups := []models.GroupStatsRecord{
		{GroupID: "g1", RealizedPnL: -42.5, FailedCopies: 2},
	}
	followers := []models.FollowerStatsRecord{
		{
			FollowerID: "f1",
			GroupID:    "g1",
			StatsDay:   "2026-03-14",
			Attempts:   5,
			Successes:  4,
			Stats: models.FollowerStats{
				TradesToday:  3,
				TradesTotal:  4,
				TotalProfit:  -42.5,
				AvgLatencyMs: 120.5,
				FailedCopies: 1,
				LastCopyAt:   time.Now().UTC().Truncate(time.Second),
			},
		},
	}
	require.NoError(t, s.SaveGroupStats(groups, followers))

	// Повторное сохранение перезаписывает снимок
	groups[0].RealizedPnL = -50
	followers[0].Stats.TradesTotal = 5
	require.NoError(t, s.SaveGroupStats(groups, followers))

	gotGroups, gotFollowers, err := s.LoadGroupStats()
	require.NoError(t, err)
	require.Len(t, gotGroups, 1)
	require.Len(t, gotFollowers, 1)

	assert.Equal(t, "g1", gotGroups[0].GroupID)
	assert.Equal(t, -50.0, gotGroups[0].RealizedPnL)
	assert.Equal(t, 2, gotGroups[0].FailedCopies)

	f := gotFollowers[0]
	assert.Equal(t, "f1", f.FollowerID)
	assert.Equal(t, "2026-03-14", f.StatsDay)
	assert.Equal(t, 5, f.Attempts)
	assert.Equal(t, 4, f.Successes)
	assert.Equal(t, 3, f.Stats.TradesToday)
	assert.Equal(t, 5, f.Stats.TradesTotal)
	assert.Equal(t, -42.5, f.Stats.TotalProfit)
	assert.Equal(t, 120.5, f.Stats.AvgLatencyMs)
	// SuccessRate восстанавливается из attempts/successes
	assert.InDelta(t, 0.8, f.Stats.SuccessRate, 1e-9)
}

func TestDailyLimitRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	st := models.DailyLimitState{
		AccountID:         "uuid-1",
		ServerDay:         "2026-03-10",
		DailyStartBalance: 10000,
		CurrentEquity:     9400,
		HighWaterMark:     10100,
		Breached:          true,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, s.SaveDailyLimit(st))

	// Повторное сохранение того же аккаунта перезаписывает состояние
	st.CurrentEquity = 9300
	require.NoError(t, s.SaveDailyLimit(st))

	loaded, err := s.LoadDailyLimits()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded["uuid-1"]
	assert.Equal(t, "2026-03-10", got.ServerDay)
	assert.Equal(t, 10000.0, got.DailyStartBalance)
	assert.Equal(t, 9300.0, got.CurrentEquity)
	assert.True(t, got.Breached)
}
