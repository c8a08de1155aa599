package charthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-hub/src/models"
)

// 2024-01-02 is a regular trading day; EST applies (UTC-5).
const (
	tsPreMarket   = int64(1_704_200_400_000) // 08:00 ET
	tsSessionOpen = int64(1_704_205_800_000) // 09:30 ET
	tsMidSession  = int64(1_704_216_600_000) // 12:30 ET
	tsLastMinute  = int64(1_704_229_140_000) // 15:59 ET
	tsSessionEnd  = int64(1_704_229_200_000) // 16:00 ET
	tsAfterHours  = int64(1_704_236_400_000) // 18:00 ET
)

func TestIsRegularSessionTimestamp(t *testing.T) {
	assert.False(t, IsRegularSessionTimestamp(tsPreMarket))
	assert.True(t, IsRegularSessionTimestamp(tsSessionOpen))
	assert.True(t, IsRegularSessionTimestamp(tsMidSession))
	assert.True(t, IsRegularSessionTimestamp(tsLastMinute))
	assert.False(t, IsRegularSessionTimestamp(tsSessionEnd))
	assert.False(t, IsRegularSessionTimestamp(tsAfterHours))
}

func TestFilterBarsForSessionMode(t *testing.T) {
	bars := []models.MCandle{
		barAt(tsPreMarket, true),
		barAt(tsSessionOpen, true),
		barAt(tsMidSession, true),
		barAt(tsAfterHours, false),
	}

	t.Run("regular mode drops extended-hours bars", func(t *testing.T) {
		filtered := FilterBarsForSessionMode(bars, models.SessionRegular, fiveMinute())
		require.Len(t, filtered, 2)
		assert.Equal(t, tsSessionOpen, filtered[0].T)
		assert.Equal(t, tsMidSession, filtered[1].T)
	})

	t.Run("extended mode passes everything through", func(t *testing.T) {
		filtered := FilterBarsForSessionMode(bars, models.SessionExtended, fiveMinute())
		assert.Len(t, filtered, len(bars))
	})

	t.Run("daily timeframes are never filtered", func(t *testing.T) {
		filtered := FilterBarsForSessionMode(bars, models.SessionRegular, ResolveTimeframe("1/day"))
		assert.Len(t, filtered, len(bars))
	})

	t.Run("filtering does not mutate the input", func(t *testing.T) {
		FilterBarsForSessionMode(bars, models.SessionRegular, fiveMinute())
		assert.Len(t, bars, 4)
	})
}

func TestBuildSessionNote(t *testing.T) {
	assert.NotEmpty(t, BuildSessionNote(models.SessionRegular, fiveMinute()))
	assert.Empty(t, BuildSessionNote(models.SessionExtended, fiveMinute()))
	assert.Empty(t, BuildSessionNote(models.SessionRegular, ResolveTimeframe("1/day")))
}
