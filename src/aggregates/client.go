package aggregates

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"chart-hub/src/helpers"
	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/utils"
)

// -----------------------------------------------------------------------------
// Client - the external aggregates resolver.
//
// Owns the REST fetch, a TTL cache and the closed-market fallback: when the
// upstream is unreachable but a previous batch is cached, the stale batch is
// served degraded rather than failing the chart outright.
// -----------------------------------------------------------------------------

type cacheEntry struct {
	result    models.MAggregatesResult
	fetchedAt time.Time
}

type Client struct {
	network      interfaces.INetworkManager
	marketStatus *utils.MarketStatusProvider
	logger       *logger.Logger
	baseURL      string
	apiKey       string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// -----------------------------------------------------------------------------

func NewClient(cfg models.MUpstreamConfig, network interfaces.INetworkManager, marketStatus *utils.MarketStatusProvider, log *logger.Logger) *Client {
	return &Client{
		network:      network,
		marketStatus: marketStatus,
		logger:       log,
		baseURL:      strings.TrimRight(cfg.RestBaseURL, "/"),
		apiKey:       cfg.APIKey,
		cache:        make(map[string]cacheEntry),
	}
}

// -----------------------------------------------------------------------------

// Resolve fetches historical bars for the requested window, serving from
// cache when fresh and falling back to the last known batch on upstream
// failure.
func (c *Client) Resolve(req models.MAggregatesRequest) (*models.MAggregatesResult, error) {
	now := time.Now()
	key := cacheKey(req)

	if cached, ok := c.freshCached(key, now, req.Timespan); ok {
		result := cached
		result.Health = &models.MHealthMeta{Mode: models.ModeLive, Source: models.HealthSourceCache}
		c.annotateSession(&result, now)
		return &result, nil
	}

	result, err := c.fetch(req, now)
	if err != nil {
		// Stale cache beats a dead chart.
		if cached, ok := c.staleCached(key); ok {
			c.logger.Warning("Aggregates fetch failed for %s, serving stale cache: %v", req.Ticker, err)
			fallback := cached
			fallback.Health = &models.MHealthMeta{
				Mode:              models.ModeDegraded,
				Source:            models.HealthSourceCache,
				ProviderThrottled: isThrottleError(err),
			}
			fallback.Note = "Serving last known data; live source unavailable."
			c.annotateSession(&fallback, now)
			return &fallback, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{result: *result, fetchedAt: now}
	c.mu.Unlock()

	return result, nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// upstreamResponse is the provider's range-aggregates shape.
type upstreamResponse struct {
	Ticker       string                  `json:"ticker"`
	ResultsCount int                     `json:"resultsCount"`
	Results      []models.MNormalizedBar `json:"results"`
	Status       string                  `json:"status"`
}

func (c *Client) fetch(req models.MAggregatesRequest, now time.Time) (*models.MAggregatesResult, error) {
	from, to := c.timeRange(req, now)
	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		c.baseURL, req.Ticker, req.Multiplier, req.Timespan, from, to)

	params := map[string]string{
		"adjusted": "true",
		"sort":     "asc",
		"limit":    fmt.Sprintf("%d", limitFor(req.Window)),
	}
	if c.apiKey != "" {
		params["apiKey"] = c.apiKey
	}

	body, err := c.network.Get(url, params)
	if err != nil {
		return nil, err
	}

	var parsed upstreamResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &helpers.BackfillError{ChartHubError: helpers.ChartHubError{
			Message: fmt.Sprintf("malformed aggregates response for %s", req.Ticker),
			Cause:   err,
		}}
	}

	results := parsed.Results
	if len(results) > req.Window && req.Window > 0 {
		results = results[len(results)-req.Window:]
	}

	result := &models.MAggregatesResult{
		Results: results,
		Health:  &models.MHealthMeta{Mode: models.ModeLive, Source: models.HealthSourceREST},
	}
	if req.Timespan == "day" {
		result.ResultGranularity = "daily"
	} else {
		result.ResultGranularity = "intraday"
	}
	c.annotateSession(result, now)

	c.logger.Debug("Fetched %d bars for %s %d/%s", len(results), req.Ticker, req.Multiplier, req.Timespan)
	return result, nil
}

// -----------------------------------------------------------------------------

// annotateSession stamps the market-session context onto a result.
func (c *Client) annotateSession(result *models.MAggregatesResult, now time.Time) {
	status := c.marketStatus.Snapshot(now)
	result.MarketStatus = &status
	result.MarketClosed = status.State == "closed"
	result.AfterHours = status.State == "extended-hours"
	result.UsingLastSession = result.MarketClosed && len(result.Results) > 0
	result.FetchedAt = now.UnixMilli()
}

// -----------------------------------------------------------------------------

// timeRange converts a bar-count window into an epoch-ms range. Intraday
// ranges are stretched to cover weekends and holidays so the window is
// still filled with actual trading bars.
func (c *Client) timeRange(req models.MAggregatesRequest, now time.Time) (int64, int64) {
	var barMs int64
	switch req.Timespan {
	case "minute":
		barMs = 60_000
	case "hour":
		barMs = 3_600_000
	default:
		barMs = 86_400_000
	}
	barMs *= int64(req.Multiplier)

	span := barMs * int64(req.Window)
	if req.Timespan == "day" {
		// Calendar days vs trading days, ~7/5 plus holiday slack.
		span = span * 3 / 2
	} else {
		// A trading day yields at most 16h of bars out of 24h, and
		// weekends yield none.
		span *= 3
	}

	to := now.UnixMilli()
	return to - span, to
}

// -----------------------------------------------------------------------------

func (c *Client) freshCached(key string, now time.Time, timespan string) (models.MAggregatesResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return models.MAggregatesResult{}, false
	}
	if now.Sub(entry.fetchedAt) > cacheTTL(timespan) {
		return models.MAggregatesResult{}, false
	}
	return entry.result, true
}

func (c *Client) staleCached(key string) (models.MAggregatesResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return models.MAggregatesResult{}, false
	}
	return entry.result, true
}

// -----------------------------------------------------------------------------

func cacheTTL(timespan string) time.Duration {
	switch timespan {
	case "minute":
		return 30 * time.Second
	case "hour":
		return 2 * time.Minute
	default:
		return 10 * time.Minute
	}
}

func cacheKey(req models.MAggregatesRequest) string {
	return fmt.Sprintf("%s:%d:%s:%d", req.Ticker, req.Multiplier, req.Timespan, req.Window)
}

func limitFor(window int) int {
	// Provider caps result pages; ask for headroom over the window since
	// the raw range includes non-trading time.
	limit := window * 2
	if limit > 50_000 {
		limit = 50_000
	}
	if limit < 100 {
		limit = 100
	}
	return limit
}

func isThrottleError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "throttled")
}
