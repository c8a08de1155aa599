package charthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-hub/src/models"
)

const testKey = "AAPL:5/minute"

func newTestStore() *CandleBufferStore {
	store := NewCandleBufferStore()
	store.GetOrCreate(testKey, "AAPL", "5/minute")
	return store
}

func barAt(t int64, final bool) models.MCandle {
	return models.MCandle{T: t, O: 100, H: 101, L: 99, C: 100.5, V: 1000, IsFinal: final, Source: models.SourceLive}
}

func TestReplaceBars(t *testing.T) {
	t.Run("dedups by timestamp with last write winning", func(t *testing.T) {
		store := newTestStore()
		first := barAt(1000, true)
		second := barAt(1000, true)
		second.C = 200

		store.ReplaceBars(testKey, []models.MCandle{first, second}, 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 1)
		assert.Equal(t, 200.0, snap.Bars[0].C)
	})

	t.Run("sorts ascending and forces every bar final", func(t *testing.T) {
		store := newTestStore()
		store.ReplaceBars(testKey, []models.MCandle{barAt(3000, false), barAt(1000, false), barAt(2000, true)}, 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 3)
		assert.Equal(t, int64(1000), snap.Bars[0].T)
		assert.Equal(t, int64(3000), snap.Bars[2].T)
		for _, bar := range snap.Bars {
			assert.True(t, bar.IsFinal)
		}
	})

	t.Run("truncates to newest maxBars", func(t *testing.T) {
		store := newTestStore()
		var bars []models.MCandle
		for i := int64(0); i < 10; i++ {
			bars = append(bars, barAt(1000+i*1000, true))
		}
		store.ReplaceBars(testKey, bars, 4)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 4)
		assert.Equal(t, int64(7000), snap.Bars[0].T)
		assert.Equal(t, int64(10000), snap.Bars[3].T)
	})

	t.Run("replace is idempotent", func(t *testing.T) {
		store := newTestStore()
		bars := []models.MCandle{barAt(1000, true), barAt(2000, true)}
		store.ReplaceBars(testKey, bars, 500)
		first := store.Snapshot(testKey).Bars
		store.ReplaceBars(testKey, bars, 500)
		assert.Equal(t, first, store.Snapshot(testKey).Bars)
	})

	t.Run("unknown key is a no-op", func(t *testing.T) {
		store := NewCandleBufferStore()
		store.ReplaceBars("missing", []models.MCandle{barAt(1000, true)}, 500)
		assert.Nil(t, store.Snapshot("missing"))
	})
}

func TestUpsertCandle(t *testing.T) {
	t.Run("appends newer bars in order", func(t *testing.T) {
		store := newTestStore()
		store.UpsertCandle(testKey, barAt(1000, true), 500)
		store.UpsertCandle(testKey, barAt(2000, false), 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 2)
		assert.Equal(t, int64(1000), snap.Bars[0].T)
		assert.Equal(t, int64(2000), snap.Bars[1].T)
	})

	t.Run("replaces the bar with the same timestamp", func(t *testing.T) {
		store := newTestStore()
		store.UpsertCandle(testKey, barAt(1000, false), 500)

		updated := barAt(1000, false)
		updated.C = 250
		store.UpsertCandle(testKey, updated, 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 1)
		assert.Equal(t, 250.0, snap.Bars[0].C)
	})

	t.Run("silently drops bars older than the newest", func(t *testing.T) {
		store := newTestStore()
		store.UpsertCandle(testKey, barAt(5000, true), 500)
		store.UpsertCandle(testKey, barAt(3000, true), 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 1)
		assert.Equal(t, int64(5000), snap.Bars[0].T)
	})

	t.Run("a new partial finalizes the previous partial", func(t *testing.T) {
		store := newTestStore()
		store.UpsertCandle(testKey, barAt(1000, false), 500)
		store.UpsertCandle(testKey, barAt(2000, false), 500)

		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 2)
		assert.True(t, snap.Bars[0].IsFinal)
		assert.False(t, snap.Bars[1].IsFinal)
	})

	t.Run("at most one partial bar survives any upsert", func(t *testing.T) {
		store := newTestStore()
		store.ReplaceBars(testKey, []models.MCandle{barAt(1000, true), barAt(2000, true)}, 500)
		store.UpsertCandle(testKey, barAt(3000, false), 500)
		store.UpsertCandle(testKey, barAt(4000, false), 500)

		partials := 0
		for _, bar := range store.Snapshot(testKey).Bars {
			if !bar.IsFinal {
				partials++
			}
		}
		assert.Equal(t, 1, partials)
	})

	t.Run("enforces the bar limit on live growth", func(t *testing.T) {
		store := newTestStore()
		for i := int64(0); i < 6; i++ {
			store.UpsertCandle(testKey, barAt(1000+i*1000, true), 3)
		}
		snap := store.Snapshot(testKey)
		require.Len(t, snap.Bars, 3)
		assert.Equal(t, int64(4000), snap.Bars[0].T)
	})
}

func TestBufferHealthAndStats(t *testing.T) {
	t.Run("snapshot health is nil before the first backfill", func(t *testing.T) {
		store := newTestStore()
		store.UpsertCandle(testKey, barAt(1000, true), 500)
		assert.Nil(t, store.Snapshot(testKey).Health)
	})

	t.Run("snapshot carries health once meta is set", func(t *testing.T) {
		store := newTestStore()
		store.ReplaceBars(testKey, []models.MCandle{barAt(1000, true)}, 500)
		store.SetHealthMeta(testKey, models.MHealthMeta{Mode: models.ModeLive, Source: models.HealthSourceWS})

		snap := store.Snapshot(testKey)
		require.NotNil(t, snap.Health)
		assert.Equal(t, models.ModeLive, snap.Health.Mode)
		require.NotNil(t, snap.Health.LastUpdateMsAgo)
		assert.GreaterOrEqual(t, *snap.Health.LastUpdateMsAgo, int64(0))
	})

	t.Run("stats reflect bar counts and partials", func(t *testing.T) {
		store := newTestStore()
		store.ReplaceBars(testKey, []models.MCandle{barAt(1000, true), barAt(2000, true)}, 500)
		store.UpsertCandle(testKey, barAt(3000, false), 500)

		stats := store.Stats(testKey)
		require.NotNil(t, stats)
		assert.Equal(t, "AAPL", stats.Symbol)
		assert.Equal(t, 3, stats.BarCount)
		assert.Equal(t, 1, stats.PartialCount)
		require.NotNil(t, stats.OldestTimestamp)
		assert.Equal(t, int64(1000), *stats.OldestTimestamp)
		require.NotNil(t, stats.NewestTimestamp)
		assert.Equal(t, int64(3000), *stats.NewestTimestamp)
	})

	t.Run("quality metrics include the computed score", func(t *testing.T) {
		store := newTestStore()
		store.ReplaceBars(testKey, []models.MCandle{barAt(1000, true)}, 500)
		store.SetHealthMeta(testKey, models.MHealthMeta{Mode: models.ModeLive, Source: models.HealthSourceWS})
		store.IncrementAnomalyCount(testKey)

		m := store.QualityMetrics(testKey)
		require.NotNil(t, m)
		assert.Equal(t, 1, m.AnomalyCount)
		assert.Greater(t, m.QualityScore, 0)
	})

	t.Run("drop removes the buffer", func(t *testing.T) {
		store := newTestStore()
		store.Drop(testKey)
		assert.Nil(t, store.Snapshot(testKey))
		assert.Empty(t, store.AllStats())
	})
}
