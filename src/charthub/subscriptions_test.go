package charthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-hub/src/models"
)

func focusOn(symbol, timeframe string) models.MFocus {
	return models.MFocus{Symbol: symbol, Timeframe: timeframe, SessionMode: models.SessionRegular}
}

func TestSubscriptionRegistry(t *testing.T) {
	t.Run("set focus registers all three views", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		previous, key := r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))

		assert.Nil(t, previous)
		assert.Equal(t, "AAPL:5/minute", key)
		assert.Equal(t, []string{"sock-1"}, r.SocketsForKey(key))
		assert.Equal(t, []string{key}, r.FocusKeysForSymbol("AAPL"))
		require.NotNil(t, r.FocusForSocket("sock-1"))
		assert.Equal(t, "AAPL", r.FocusForSocket("sock-1").Symbol)
	})

	t.Run("switching focus vacates the old key", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))
		previous, key := r.SetFocus("sock-1", focusOn("TSLA", "1/minute"))

		require.NotNil(t, previous)
		assert.Equal(t, "AAPL", previous.Symbol)
		assert.Equal(t, "TSLA:1/minute", key)
		assert.Empty(t, r.SocketsForKey("AAPL:5/minute"))
		assert.Empty(t, r.FocusKeysForSymbol("AAPL"))
	})

	t.Run("refocusing the same key keeps the socket subscribed", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))
		// Same key, different session mode.
		refocus := focusOn("AAPL", "5/minute")
		refocus.SessionMode = models.SessionExtended
		_, key := r.SetFocus("sock-1", refocus)

		assert.Equal(t, []string{"sock-1"}, r.SocketsForKey(key))
		assert.Equal(t, models.SessionExtended, r.FocusForSocket("sock-1").SessionMode)
	})

	t.Run("shared keys survive one socket leaving", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))
		r.SetFocus("sock-2", focusOn("AAPL", "5/minute"))

		r.ClearFocus("sock-1")
		assert.Equal(t, []string{"sock-2"}, r.SocketsForKey("AAPL:5/minute"))
		assert.Equal(t, []string{"AAPL:5/minute"}, r.FocusKeysForSymbol("AAPL"))
	})

	t.Run("clearing the last socket drains every view", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))

		previous := r.ClearFocus("sock-1")
		require.NotNil(t, previous)
		assert.Empty(t, r.SocketsForKey("AAPL:5/minute"))
		assert.Empty(t, r.FocusKeysForSymbol("AAPL"))
		assert.Nil(t, r.FocusForSocket("sock-1"))
	})

	t.Run("clearing an unknown socket returns nil", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		assert.Nil(t, r.ClearFocus("ghost"))
	})

	t.Run("one symbol with two timeframes yields two keys", func(t *testing.T) {
		r := NewSubscriptionRegistry()
		r.SetFocus("sock-1", focusOn("AAPL", "5/minute"))
		r.SetFocus("sock-2", focusOn("AAPL", "1/minute"))

		keys := r.FocusKeysForSymbol("AAPL")
		assert.Len(t, keys, 2)
		assert.ElementsMatch(t, []string{"AAPL:5/minute", "AAPL:1/minute"}, keys)
	})
}
