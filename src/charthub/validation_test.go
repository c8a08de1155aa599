package charthub

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"chart-hub/src/models"
)

func validCandle(t int64) models.MCandle {
	return models.MCandle{T: t, O: 100, H: 101, L: 99, C: 100.5, V: 1000, IsFinal: true}
}

func TestIsValidCandle(t *testing.T) {
	t.Run("accepts a well-formed candle", func(t *testing.T) {
		assert.True(t, IsValidCandle(validCandle(1_700_000_000_000)))
	})

	t.Run("rejects NaN fields", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.C = math.NaN()
		assert.False(t, IsValidCandle(c))
	})

	t.Run("rejects infinite fields", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.H = math.Inf(1)
		assert.False(t, IsValidCandle(c))
	})

	t.Run("rejects high below open or close", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.H = 99.5
		assert.False(t, IsValidCandle(c))
	})

	t.Run("rejects low above open or close", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.L = 100.2
		assert.False(t, IsValidCandle(c))
	})

	t.Run("rejects negative volume", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.V = -1
		assert.False(t, IsValidCandle(c))
	})

	t.Run("rejects non-positive timestamp", func(t *testing.T) {
		assert.False(t, IsValidCandle(validCandle(0)))
		assert.False(t, IsValidCandle(validCandle(-60_000)))
	})

	t.Run("accepts zero volume", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.V = 0
		assert.True(t, IsValidCandle(c))
	})
}

func TestDetectAnomalies(t *testing.T) {
	t.Run("clean candle has no anomalies", func(t *testing.T) {
		assert.Empty(t, DetectAnomalies(validCandle(1_700_000_000_000), 0.20))
	})

	t.Run("flags OHLC violation", func(t *testing.T) {
		c := validCandle(1_700_000_000_000)
		c.H = 98
		types := anomalyTypes(DetectAnomalies(c, 0.20))
		assert.Contains(t, types, "ohlc_violation")
	})

	t.Run("flags zero range with traded volume", func(t *testing.T) {
		c := models.MCandle{T: 1_700_000_000_000, O: 100, H: 100, L: 100, C: 100, V: 500}
		types := anomalyTypes(DetectAnomalies(c, 0.20))
		assert.Contains(t, types, "zero_range")
	})

	t.Run("flags extreme intrabar move", func(t *testing.T) {
		c := models.MCandle{T: 1_700_000_000_000, O: 100, H: 130, L: 90, C: 95, V: 500}
		types := anomalyTypes(DetectAnomalies(c, 0.20))
		assert.Contains(t, types, "extreme_move")
	})

	t.Run("range within threshold is not extreme", func(t *testing.T) {
		c := models.MCandle{T: 1_700_000_000_000, O: 100, H: 105, L: 95, C: 102, V: 500}
		types := anomalyTypes(DetectAnomalies(c, 0.20))
		assert.NotContains(t, types, "extreme_move")
	})
}

func anomalyTypes(anomalies []Anomaly) []string {
	types := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		types = append(types, a.Type)
	}
	return types
}

func TestCountGaps(t *testing.T) {
	const tfMs = 300_000 // 5 minutes
	base := int64(1_700_000_000_000)

	bars := func(offsets ...int64) []models.MCandle {
		out := make([]models.MCandle, len(offsets))
		for i, off := range offsets {
			out[i] = validCandle(base + off*tfMs)
		}
		return out
	}

	t.Run("contiguous bars have no gaps", func(t *testing.T) {
		assert.Equal(t, 0, CountGaps(bars(0, 1, 2, 3), tfMs, 1.5))
	})

	t.Run("one missing bar counts once", func(t *testing.T) {
		assert.Equal(t, 1, CountGaps(bars(0, 2), tfMs, 1.5))
	})

	t.Run("larger holes count each missing bar", func(t *testing.T) {
		assert.Equal(t, 3, CountGaps(bars(0, 4), tfMs, 1.5))
	})

	t.Run("gaps accumulate across the sequence", func(t *testing.T) {
		assert.Equal(t, 2, CountGaps(bars(0, 2, 3, 5), tfMs, 1.5))
	})

	t.Run("unsorted input is handled", func(t *testing.T) {
		assert.Equal(t, 1, CountGaps(bars(2, 0), tfMs, 1.5))
	})

	t.Run("short or empty sequences have no gaps", func(t *testing.T) {
		assert.Equal(t, 0, CountGaps(nil, tfMs, 1.5))
		assert.Equal(t, 0, CountGaps(bars(0), tfMs, 1.5))
	})
}

func TestComputeQualityScore(t *testing.T) {
	fresh := int64(1_000)

	t.Run("healthy live buffer scores 100", func(t *testing.T) {
		m := models.MQualityMetrics{Mode: models.ModeLive, LastUpdateMsAgo: &fresh}
		assert.Equal(t, 100, ComputeQualityScore(m))
	})

	t.Run("degraded mode deducts 30", func(t *testing.T) {
		m := models.MQualityMetrics{Mode: models.ModeDegraded, LastUpdateMsAgo: &fresh}
		assert.Equal(t, 70, ComputeQualityScore(m))
	})

	t.Run("staleness tiers", func(t *testing.T) {
		slightlyStale := int64(90_000)
		veryStale := int64(200_000)
		assert.Equal(t, 90, ComputeQualityScore(models.MQualityMetrics{Mode: models.ModeLive, LastUpdateMsAgo: &slightlyStale}))
		assert.Equal(t, 75, ComputeQualityScore(models.MQualityMetrics{Mode: models.ModeLive, LastUpdateMsAgo: &veryStale}))
	})

	t.Run("gap deduction caps at 20", func(t *testing.T) {
		m := models.MQualityMetrics{Mode: models.ModeLive, LastUpdateMsAgo: &fresh, GapsDetected: 50}
		assert.Equal(t, 80, ComputeQualityScore(m))
	})

	t.Run("anomaly deduction caps at 15", func(t *testing.T) {
		m := models.MQualityMetrics{Mode: models.ModeLive, LastUpdateMsAgo: &fresh, AnomalyCount: 50}
		assert.Equal(t, 85, ComputeQualityScore(m))
	})

	t.Run("score never drops below zero", func(t *testing.T) {
		stale := int64(500_000)
		m := models.MQualityMetrics{
			Mode:              models.ModeDegraded,
			LastUpdateMsAgo:   &stale,
			GapsDetected:      100,
			AnomalyCount:      100,
			ProviderThrottled: true,
		}
		assert.Equal(t, 0, ComputeQualityScore(m))
	})
}
