package aggregates

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/utils"
)

type stubNetwork struct {
	calls int32
	body  []byte
	err   error
}

func (s *stubNetwork) Get(url string, params map[string]string) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

func newTestClient(network *stubNetwork) *Client {
	cfg := models.MUpstreamConfig{RestBaseURL: "https://api.example.com/", APIKey: "test-key"}
	return NewClient(cfg, network, utils.NewMarketStatusProvider(), logger.NewLogger(nil, "test"))
}

const responseBody = `{
	"ticker": "AAPL",
	"resultsCount": 2,
	"status": "OK",
	"results": [
		{"t": 1704205800000, "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 1000},
		{"t": 1704206100000, "o": 100.5, "h": 102, "l": 100, "c": 101.5, "v": 800}
	]
}`

func request() models.MAggregatesRequest {
	return models.MAggregatesRequest{Ticker: "AAPL", Multiplier: 5, Timespan: "minute", Window: 780}
}

func TestClientResolve(t *testing.T) {
	t.Run("parses upstream bars and stamps session context", func(t *testing.T) {
		network := &stubNetwork{body: []byte(responseBody)}
		client := newTestClient(network)

		result, err := client.Resolve(request())
		require.NoError(t, err)
		require.Len(t, result.Results, 2)
		assert.Equal(t, 100.0, result.Results[0].O)
		assert.Equal(t, "intraday", result.ResultGranularity)
		require.NotNil(t, result.Health)
		assert.Equal(t, models.ModeLive, result.Health.Mode)
		assert.Equal(t, models.HealthSourceREST, result.Health.Source)
		require.NotNil(t, result.MarketStatus)
		assert.NotEmpty(t, result.MarketStatus.State)
		assert.Greater(t, result.FetchedAt, int64(0))
	})

	t.Run("daily requests report daily granularity", func(t *testing.T) {
		network := &stubNetwork{body: []byte(responseBody)}
		client := newTestClient(network)

		req := request()
		req.Timespan = "day"
		req.Multiplier = 1
		result, err := client.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, "daily", result.ResultGranularity)
	})

	t.Run("serves the cache within its TTL", func(t *testing.T) {
		network := &stubNetwork{body: []byte(responseBody)}
		client := newTestClient(network)

		_, err := client.Resolve(request())
		require.NoError(t, err)

		result, err := client.Resolve(request())
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&network.calls))
		assert.Equal(t, models.HealthSourceCache, result.Health.Source)
	})

	t.Run("falls back to stale cache on upstream failure", func(t *testing.T) {
		network := &stubNetwork{body: []byte(responseBody)}
		client := newTestClient(network)

		_, err := client.Resolve(request())
		require.NoError(t, err)

		// Expire the cache, then kill the upstream.
		client.mu.Lock()
		for key, entry := range client.cache {
			entry.fetchedAt = entry.fetchedAt.Add(-time.Hour)
			client.cache[key] = entry
		}
		client.mu.Unlock()
		network.err = errors.New("connection refused")

		result, err := client.Resolve(request())
		require.NoError(t, err)
		require.Len(t, result.Results, 2)
		assert.Equal(t, models.ModeDegraded, result.Health.Mode)
		assert.Equal(t, models.HealthSourceCache, result.Health.Source)
		assert.NotEmpty(t, result.Note)
	})

	t.Run("marks throttled fallbacks", func(t *testing.T) {
		network := &stubNetwork{body: []byte(responseBody)}
		client := newTestClient(network)

		_, err := client.Resolve(request())
		require.NoError(t, err)

		client.mu.Lock()
		for key, entry := range client.cache {
			entry.fetchedAt = entry.fetchedAt.Add(-time.Hour)
			client.cache[key] = entry
		}
		client.mu.Unlock()
		network.err = errors.New("provider throttled (status 429)")

		result, err := client.Resolve(request())
		require.NoError(t, err)
		assert.True(t, result.Health.ProviderThrottled)
	})

	t.Run("errors without any cache propagate", func(t *testing.T) {
		network := &stubNetwork{err: errors.New("connection refused")}
		client := newTestClient(network)

		_, err := client.Resolve(request())
		assert.Error(t, err)
	})

	t.Run("malformed responses error", func(t *testing.T) {
		network := &stubNetwork{body: []byte("<html>gateway error</html>")}
		client := newTestClient(network)

		_, err := client.Resolve(request())
		assert.Error(t, err)
	})
}
