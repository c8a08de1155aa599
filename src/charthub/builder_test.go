package charthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-hub/src/models"
)

// 2024-01-02 14:30:00 UTC, aligned to a 5-minute boundary.
const baseMinute = int64(1_704_205_800_000)

func aggEvent(eventType string, start int64, o, h, l, c, v float64) models.MAggregateEvent {
	return models.MAggregateEvent{
		Symbol:    "AAPL",
		EventType: eventType,
		Start:     start,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}
}

func fiveMinute() models.MTimeframe { return ResolveTimeframe("5/minute") }

func TestBuilderIngest(t *testing.T) {
	t.Run("ignores non-minute timeframes", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		result := b.Ingest("AAPL:1/hour", "AAPL", ResolveTimeframe("1/hour"), aggEvent("AM", baseMinute, 1, 2, 1, 2, 10))
		assert.Nil(t, result)
	})

	t.Run("ignores events for other symbols", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		event := aggEvent("AM", baseMinute, 1, 2, 1, 2, 10)
		event.Symbol = "TSLA"
		assert.Nil(t, b.Ingest("AAPL:5/minute", "AAPL", fiveMinute(), event))
	})

	t.Run("drops out-of-order events", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:1/minute"
		tf := ResolveTimeframe("1/minute")

		require.NotNil(t, b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+minuteMs, 1, 2, 1, 2, 10)))
		assert.Nil(t, b.Ingest(key, "AAPL", tf, aggEvent("A", baseMinute, 1, 2, 1, 2, 10)))
	})

	t.Run("in-progress events merge into the minute bar", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:1/minute"
		tf := ResolveTimeframe("1/minute")

		first := b.Ingest(key, "AAPL", tf, aggEvent("A", baseMinute, 100, 101, 99, 100.5, 500))
		require.NotNil(t, first)

		second := b.Ingest(key, "AAPL", tf, aggEvent("A", baseMinute+10_000, 100.5, 103, 98, 102, 300))
		require.NotNil(t, second)

		assert.Equal(t, 100.0, second.Candle.O)
		assert.Equal(t, 103.0, second.Candle.H)
		assert.Equal(t, 98.0, second.Candle.L)
		assert.Equal(t, 102.0, second.Candle.C)
		assert.Equal(t, 800.0, second.Candle.V)
	})

	t.Run("completed-minute events overwrite merged state", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:1/minute"
		tf := ResolveTimeframe("1/minute")

		b.Ingest(key, "AAPL", tf, aggEvent("A", baseMinute, 100, 101, 99, 100.5, 500))
		final := b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+30_000, 100, 105, 97, 104, 2000))
		require.NotNil(t, final)

		assert.Equal(t, 105.0, final.Candle.H)
		assert.Equal(t, 97.0, final.Candle.L)
		assert.Equal(t, 2000.0, final.Candle.V)
	})

	t.Run("rolls minutes up into the timeframe bucket", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:5/minute"
		tf := fiveMinute()

		b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute, 100, 102, 99, 101, 500))
		b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+minuteMs, 101, 104, 100, 103, 700))
		result := b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+2*minuteMs, 103, 103.5, 98, 99, 300))
		require.NotNil(t, result)

		assert.Equal(t, baseMinute, result.Candle.T)
		assert.Equal(t, 100.0, result.Candle.O)
		assert.Equal(t, 104.0, result.Candle.H)
		assert.Equal(t, 98.0, result.Candle.L)
		assert.Equal(t, 99.0, result.Candle.C)
		assert.Equal(t, 1500.0, result.Candle.V)
		assert.Equal(t, models.SourceLive, result.Candle.Source)
	})

	t.Run("bucket stays partial until its last minute closes", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:5/minute"
		tf := fiveMinute()

		mid := b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+2*minuteMs, 1, 2, 1, 2, 10))
		require.NotNil(t, mid)
		assert.False(t, mid.Candle.IsFinal)

		lastUpdate := b.Ingest(key, "AAPL", tf, aggEvent("A", baseMinute+4*minuteMs, 1, 2, 1, 2, 10))
		require.NotNil(t, lastUpdate)
		assert.False(t, lastUpdate.Candle.IsFinal)

		closing := b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+4*minuteMs+30_000, 1, 2, 1, 2, 10))
		require.NotNil(t, closing)
		assert.True(t, closing.Candle.IsFinal)
	})

	t.Run("prunes minute state beyond the cap", func(t *testing.T) {
		b := NewMinuteBarBuilder(3)
		key := "AAPL:1/minute"
		tf := ResolveTimeframe("1/minute")

		for i := int64(0); i < 5; i++ {
			require.NotNil(t, b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+i*minuteMs, 1, 2, 1, 2, 10)))
		}
		assert.Len(t, b.states[key].minuteBars, 3)
	})

	t.Run("drop clears key state", func(t *testing.T) {
		b := NewMinuteBarBuilder(720)
		key := "AAPL:1/minute"
		tf := ResolveTimeframe("1/minute")

		b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute+minuteMs, 1, 2, 1, 2, 10))
		b.Drop(key)

		// After a drop the out-of-order guard resets too.
		assert.NotNil(t, b.Ingest(key, "AAPL", tf, aggEvent("AM", baseMinute, 1, 2, 1, 2, 10)))
	})
}
