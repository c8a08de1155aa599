package charthub

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/utils"
)

// -----------------------------------------------------------------------------
// BackfillResolver - authoritative candle sets on demand.
//
// Concurrent requests for one (symbol,timeframe) key share a single
// in-flight fetch; every waiter receives the same result. The inflight
// entry is removed in a defer so a panicking or failing fetch cannot leak
// it.
// -----------------------------------------------------------------------------

var timeframeMap = map[string]models.MTimeframe{
	"1/minute":  {Key: "1/minute", Multiplier: 1, Timespan: "minute", Window: 3900}, // ~10 days
	"3/minute":  {Key: "3/minute", Multiplier: 3, Timespan: "minute", Window: 1300},
	"5/minute":  {Key: "5/minute", Multiplier: 5, Timespan: "minute", Window: 780}, // ~10 days
	"15/minute": {Key: "15/minute", Multiplier: 15, Timespan: "minute", Window: 260},
	"30/minute": {Key: "30/minute", Multiplier: 30, Timespan: "minute", Window: 130},
	"1/hour":    {Key: "1/hour", Multiplier: 1, Timespan: "hour", Window: 200}, // ~1 month
	"1/day":     {Key: "1/day", Multiplier: 1, Timespan: "day", Window: 252},   // ~1 year
}

const fallbackTimeframeKey = "5/minute"

// -----------------------------------------------------------------------------

// ResolveTimeframe maps a timeframe key to its config; unknown keys fall
// back to 5/minute.
func ResolveTimeframe(key string) models.MTimeframe {
	if config, ok := timeframeMap[key]; ok {
		return config
	}
	return timeframeMap[fallbackTimeframeKey]
}

// -----------------------------------------------------------------------------

// TimeframeKeys lists the supported timeframe keys, sorted.
func TimeframeKeys() []string {
	keys := make([]string, 0, len(timeframeMap))
	for key := range timeframeMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------

// TimeframeMs returns the bucket duration in milliseconds.
func TimeframeMs(config models.MTimeframe) int64 {
	var base int64
	switch config.Timespan {
	case "minute":
		base = 60_000
	case "hour":
		base = 3_600_000
	default:
		base = 86_400_000
	}
	return base * int64(config.Multiplier)
}

// -----------------------------------------------------------------------------

type BackfillResult struct {
	Candles     []models.MCandle
	HealthMeta  models.MHealthMeta
	SessionMeta models.MSessionMeta
}

type inflightBackfill struct {
	done   chan struct{}
	result *BackfillResult
	err    error
}

type BackfillResolver struct {
	aggregates interfaces.IAggregatesResolver
	logger     *logger.Logger

	mu       sync.Mutex
	inflight map[string]*inflightBackfill
}

// -----------------------------------------------------------------------------

func NewBackfillResolver(aggregates interfaces.IAggregatesResolver, log *logger.Logger) *BackfillResolver {
	return &BackfillResolver{
		aggregates: aggregates,
		logger:     log,
		inflight:   make(map[string]*inflightBackfill),
	}
}

// -----------------------------------------------------------------------------

// Backfill fetches and normalizes an authoritative candle set for the key.
// The upstream resolver owns caching and session fallback; failures
// propagate so the orchestrator can notify affected subscribers.
func (r *BackfillResolver) Backfill(symbol string, timeframe models.MTimeframe, sessionMode models.SessionMode) (*BackfillResult, error) {
	key := fmt.Sprintf("%s:%s", symbol, timeframe.Key)

	r.mu.Lock()
	if existing, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		<-existing.done
		return existing.result, existing.err
	}
	entry := &inflightBackfill{done: make(chan struct{})}
	r.inflight[key] = entry
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
		close(entry.done)
	}()

	entry.result, entry.err = r.fetch(symbol, timeframe, sessionMode)
	return entry.result, entry.err
}

// -----------------------------------------------------------------------------

func (r *BackfillResolver) fetch(symbol string, timeframe models.MTimeframe, sessionMode models.SessionMode) (*BackfillResult, error) {
	window := resolveChartWindow(timeframe, sessionMode == models.SessionRegular)

	aggregates, err := r.aggregates.Resolve(models.MAggregatesRequest{
		Ticker:     symbol,
		Multiplier: timeframe.Multiplier,
		Timespan:   timeframe.Timespan,
		Window:     window,
	})
	if err != nil {
		return nil, err
	}

	var upstreamSource models.HealthSource
	if aggregates.Health != nil {
		upstreamSource = aggregates.Health.Source
	}

	candles := normalizeAggregateResults(aggregates.Results, resolveCandleSource(upstreamSource))

	healthMeta := models.MHealthMeta{
		Mode:   resolveHealthMode(aggregates.Health, aggregates.MarketClosed),
		Source: resolveHealthSource(upstreamSource),
	}
	if aggregates.Health != nil {
		healthMeta.ProviderThrottled = aggregates.Health.ProviderThrottled
		healthMeta.GapsDetected = aggregates.Health.GapsDetected
	}

	sessionMeta := models.MSessionMeta{
		MarketClosed:      aggregates.MarketClosed,
		AfterHours:        aggregates.AfterHours,
		UsingLastSession:  aggregates.UsingLastSession,
		ResultGranularity: aggregates.ResultGranularity,
		Note:              aggregates.Note,
	}
	if sessionMeta.ResultGranularity == "" {
		sessionMeta.ResultGranularity = "intraday"
	}
	if aggregates.MarketStatus != nil {
		sessionMeta.State = aggregates.MarketStatus.State
		sessionMeta.NextOpen = aggregates.MarketStatus.NextOpen
		sessionMeta.NextClose = aggregates.MarketStatus.NextClose
		sessionMeta.FetchedAt = aggregates.MarketStatus.AsOf
	}
	if sessionMeta.FetchedAt == "" && aggregates.FetchedAt > 0 {
		sessionMeta.FetchedAt = time.UnixMilli(aggregates.FetchedAt).UTC().Format(time.RFC3339)
	}

	return &BackfillResult{
		Candles:     candles,
		HealthMeta:  healthMeta,
		SessionMeta: sessionMeta,
	}, nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// resolveChartWindow widens the fetch for regular-mode intraday charts so
// that downstream session filtering cannot starve the client: always cover
// at least a full extended day's worth of bars at the granularity.
func resolveChartWindow(config models.MTimeframe, useRegularHours bool) int {
	baseWindow := config.Window
	if baseWindow <= 0 {
		baseWindow = 180
	}
	if !useRegularHours || config.Timespan == "day" {
		return baseWindow
	}

	minutesPerBar := config.Multiplier
	if config.Timespan == "hour" {
		minutesPerBar *= 60
	}
	extendedMinutes := 16 * 60
	requiredBars := (extendedMinutes + minutesPerBar - 1) / minutesPerBar
	if requiredBars > baseWindow {
		return requiredBars
	}
	return baseWindow
}

// -----------------------------------------------------------------------------

// normalizeAggregateResults converts upstream bars to internal candles:
// timestamps normalized to epoch ms, provenance tagged, all final, sorted
// ascending. Bars with unusable timestamps are skipped.
func normalizeAggregateResults(results []models.MNormalizedBar, source models.CandleSource) []models.MCandle {
	candles := make([]models.MCandle, 0, len(results))
	for _, entry := range results {
		timestamp, ok := utils.NormalizeTimestamp(entry.T)
		if !ok || timestamp <= 0 {
			continue
		}
		candles = append(candles, models.MCandle{
			T:       timestamp,
			O:       entry.O,
			H:       entry.H,
			L:       entry.L,
			C:       entry.C,
			V:       entry.V,
			IsFinal: true,
			Source:  source,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].T < candles[j].T })
	return candles
}

// -----------------------------------------------------------------------------

func resolveCandleSource(source models.HealthSource) models.CandleSource {
	switch source {
	case models.HealthSourceCache:
		return models.SourceCache
	case models.HealthSourceSnapshot:
		return models.SourceSnapshot
	default:
		return models.SourceBackfill
	}
}

func resolveHealthSource(source models.HealthSource) models.HealthSource {
	switch source {
	case models.HealthSourceCache, models.HealthSourceSnapshot:
		return source
	default:
		return models.HealthSourceREST
	}
}

// -----------------------------------------------------------------------------

// resolveHealthMode: a closed market freezes the chart regardless of what
// upstream reports; otherwise pass recognized modes through and treat
// anything else as degraded.
func resolveHealthMode(meta *models.MHealthMeta, marketClosed bool) models.HealthMode {
	if marketClosed {
		return models.ModeFrozen
	}
	if meta != nil {
		switch meta.Mode {
		case models.ModeLive, models.ModeBackfilling, models.ModeDegraded:
			return meta.Mode
		}
	}
	return models.ModeDegraded
}
