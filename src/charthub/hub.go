package charthub

import (
	"fmt"
	"sync"

	"chart-hub/src/interfaces"
	"chart-hub/src/logger"
	"chart-hub/src/models"
	"chart-hub/src/utils"
)

// -----------------------------------------------------------------------------
// ChartHub - orchestrates focus management, live ingestion, backfill
// reconciliation and fan-out.
//
// One mutex serializes every state mutation; slow work (upstream fetches,
// persistence) always happens outside the lock and re-validates state after
// reacquiring it. The publisher is only ever called with the lock released.
// -----------------------------------------------------------------------------

type ChartHub struct {
	config    models.MChartConfig
	logger    *logger.Logger
	publisher interfaces.IPublisher
	backfill  *BackfillResolver
	feed      interfaces.ILiveFeed
	store     interfaces.IBarStore

	mu          sync.Mutex
	registry    *SubscriptionRegistry
	buffers     *CandleBufferStore
	builder     *MinuteBarBuilder
	qualityLog  *QualityLog
	timeframes  map[string]models.MTimeframe
	sessionMeta map[string]models.MSessionMeta
	feedSymbols map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewChartHub(config models.MChartConfig, log *logger.Logger, publisher interfaces.IPublisher, backfill *BackfillResolver, feed interfaces.ILiveFeed, store interfaces.IBarStore) *ChartHub {
	return &ChartHub{
		config:      config,
		logger:      log,
		publisher:   publisher,
		backfill:    backfill,
		feed:        feed,
		store:       store,
		registry:    NewSubscriptionRegistry(),
		buffers:     NewCandleBufferStore(),
		builder:     NewMinuteBarBuilder(config.MaxMinuteBars),
		qualityLog:  NewQualityLog(config.QualityLogSize, log),
		timeframes:  make(map[string]models.MTimeframe),
		sessionMeta: make(map[string]models.MSessionMeta),
		feedSymbols: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------
// Focus lifecycle
// -----------------------------------------------------------------------------

// HandleFocus processes a chart:focus request. An empty symbol clears the
// socket's focus. The client gets a cached snapshot immediately when one
// exists, then the authoritative one once backfill completes. Backfill
// failures are reported to the requesting socket only.
func (h *ChartHub) HandleFocus(socketID string, request models.MFocusRequest) {
	symbol, ok := utils.NormalizeSymbol(request.Symbol)
	if !ok {
		h.clearFocus(socketID)
		h.publisher.SendTo(socketID, models.EventChartCleared, struct{}{})
		return
	}

	timeframe := ResolveTimeframe(request.Timeframe)
	sessionMode := models.SessionRegular
	if request.SessionMode == string(models.SessionExtended) {
		sessionMode = models.SessionExtended
	}
	focus := models.MFocus{Symbol: symbol, Timeframe: timeframe.Key, SessionMode: sessionMode}

	h.mu.Lock()
	previous, key := h.registry.SetFocus(socketID, focus)
	h.timeframes[key] = timeframe
	h.buffers.GetOrCreate(key, symbol, timeframe.Key)
	if previous != nil && FocusKey(*previous) != key {
		h.cleanupKeyIfUnused(FocusKey(*previous), previous.Symbol)
	}
	h.refreshFeedSubscriptions()
	cached := h.buffers.Snapshot(key)
	cachedSession := h.sessionMeta[key]
	backfillMode := h.backfillModeForKey(key)
	h.mu.Unlock()

	h.logger.Info("Focus %s %s (%s) for socket %s", symbol, timeframe.Key, sessionMode, socketID)

	// Serve whatever is already buffered while the backfill runs.
	if cached != nil && len(cached.Bars) > 0 {
		h.publisher.SendTo(socketID, models.EventChartSnapshot, h.buildSnapshot(focus, timeframe, cached, cachedSession))
	}

	result, err := h.backfill.Backfill(symbol, timeframe, backfillMode)
	if err != nil {
		h.logger.Error("Backfill %s %s failed: %v", symbol, timeframe.Key, err)
		h.recordQuality(models.QualityEventModeChange, symbol, timeframe.Key,
			fmt.Sprintf("backfill failed: %v", err), nil)
		h.publisher.SendTo(socketID, models.EventChartError, models.MChartError{
			Message: fmt.Sprintf("Failed to load chart data for %s", symbol),
		})
		return
	}

	h.applyBackfill(key, focus.Symbol, timeframe, result)
}

// -----------------------------------------------------------------------------

// HandleDisconnect drops every trace of a socket and releases upstream
// subscriptions its focus was the last holder of.
func (h *ChartHub) HandleDisconnect(socketID string) {
	h.clearFocus(socketID)
}

// -----------------------------------------------------------------------------

func (h *ChartHub) clearFocus(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.registry.ClearFocus(socketID)
	if previous == nil {
		return
	}
	h.cleanupKeyIfUnused(FocusKey(*previous), previous.Symbol)
	h.refreshFeedSubscriptions()
}

// -----------------------------------------------------------------------------
// Live ingestion
// -----------------------------------------------------------------------------

// IngestLiveAggregate folds one upstream tick event into every focused
// minute-timeframe buffer for its symbol, validates the resulting bar,
// detects gaps (triggering an async repair backfill) and fans the update
// out to subscribers honoring their session mode.
func (h *ChartHub) IngestLiveAggregate(event models.MAggregateEvent) {
	symbol, ok := utils.NormalizeSymbol(event.Symbol)
	if !ok {
		return
	}
	event.Symbol = symbol

	type fanout struct {
		socketID string
		update   models.MChartUpdate
	}
	var updates []fanout
	var repairs []models.MFocus

	h.mu.Lock()
	for _, key := range h.registry.FocusKeysForSymbol(symbol) {
		timeframe, ok := h.timeframes[key]
		if !ok {
			continue
		}

		result := h.builder.Ingest(key, symbol, timeframe, event)
		if result == nil {
			continue
		}

		if !IsValidCandle(result.Candle) {
			h.buffers.IncrementAnomalyCount(key)
			h.recordQuality(models.QualityEventAnomaly, symbol, timeframe.Key,
				"dropped malformed live bar", map[string]interface{}{"t": result.Candle.T})
			continue
		}
		for _, anomaly := range DetectAnomalies(result.Candle, h.extremeMoveThreshold()) {
			h.buffers.IncrementAnomalyCount(key)
			h.recordQuality(models.QualityEventAnomaly, symbol, timeframe.Key,
				anomaly.Message, map[string]interface{}{"kind": anomaly.Type, "t": result.Candle.T})
		}

		timeframeMs := TimeframeMs(timeframe)
		gapDetected := false
		if last := h.buffers.LastTimestamp(key); last != nil && result.BucketStart > *last+timeframeMs {
			gapDetected = true
			h.recordQuality(models.QualityEventGap, symbol, timeframe.Key,
				fmt.Sprintf("gap before live bar at %d", result.BucketStart),
				map[string]interface{}{"lastTimestamp": *last, "bucketStart": result.BucketStart})
		}

		h.buffers.UpsertCandle(key, result.Candle, h.config.MaxBufferBars)

		snapshot := h.buffers.Snapshot(key)
		meta := models.MHealthMeta{Mode: models.ModeLive, Source: models.HealthSourceWS}
		if existing := h.buffers.HealthMetaFor(key); existing != nil {
			meta.ProviderThrottled = existing.ProviderThrottled
		}
		meta.GapsDetected = CountGaps(snapshot.Bars, timeframeMs, h.gapFactor())
		if gapDetected {
			meta.Mode = models.ModeBackfilling
			repairs = append(repairs, models.MFocus{Symbol: symbol, Timeframe: timeframe.Key})
		}
		// A closed market freezes the chart even while stray ticks trickle
		// in; any queued gap repair still runs.
		if h.sessionMeta[key].MarketClosed {
			meta.Mode = models.ModeFrozen
		}
		h.buffers.SetHealthMeta(key, meta)

		health := BuildHealth(&meta, h.buffers.LastTimestamp(key))
		for _, socketID := range h.registry.SocketsForKey(key) {
			focus := h.registry.FocusForSocket(socketID)
			if focus == nil {
				continue
			}
			if focus.SessionMode == models.SessionRegular && timeframe.Timespan != "day" &&
				!IsRegularSessionTimestamp(result.Candle.T) {
				continue
			}
			updates = append(updates, fanout{
				socketID: socketID,
				update: models.MChartUpdate{
					Symbol:    symbol,
					Timeframe: timeframe.Key,
					Bar:       result.Candle,
					Health:    health,
				},
			})
		}
	}
	h.mu.Unlock()

	for _, entry := range updates {
		h.publisher.SendTo(entry.socketID, models.EventChartUpdate, entry.update)
	}
	for _, repair := range repairs {
		go h.repairGap(repair.Symbol, ResolveTimeframe(repair.Timeframe))
	}
}

// -----------------------------------------------------------------------------
// Backfill application
// -----------------------------------------------------------------------------

// applyBackfill installs an authoritative candle set and re-emits snapshots
// to every subscriber of the key. The buffer may have been dropped while the
// fetch ran (everyone unfocused); that batch is simply discarded.
func (h *ChartHub) applyBackfill(key, symbol string, timeframe models.MTimeframe, result *BackfillResult) {
	type fanout struct {
		socketID string
		snapshot models.MChartSnapshot
	}
	var snapshots []fanout

	h.mu.Lock()
	if h.buffers.Snapshot(key) == nil {
		h.mu.Unlock()
		return
	}

	h.buffers.ReplaceBars(key, result.Candles, h.config.MaxBufferBars)
	meta := result.HealthMeta
	meta.GapsDetected = CountGaps(result.Candles, TimeframeMs(timeframe), h.gapFactor())
	h.buffers.SetHealthMeta(key, meta)
	h.sessionMeta[key] = result.SessionMeta

	buffered := h.buffers.Snapshot(key)
	for _, socketID := range h.registry.SocketsForKey(key) {
		focus := h.registry.FocusForSocket(socketID)
		if focus == nil {
			continue
		}
		snapshots = append(snapshots, fanout{
			socketID: socketID,
			snapshot: h.buildSnapshot(*focus, timeframe, buffered, result.SessionMeta),
		})
	}
	h.mu.Unlock()

	if meta.ProviderThrottled {
		h.recordQuality(models.QualityEventThrottled, symbol, timeframe.Key, "provider throttled backfill", nil)
	}

	for _, entry := range snapshots {
		h.publisher.SendTo(entry.socketID, models.EventChartSnapshot, entry.snapshot)
	}

	if h.store != nil && len(result.Candles) > 0 {
		candles := make([]models.MCandle, len(result.Candles))
		copy(candles, result.Candles)
		go func() {
			if err := h.store.SaveCandles(symbol, timeframe.Key, candles); err != nil {
				h.logger.Warning("Persisting %s %s candles failed: %v", symbol, timeframe.Key, err)
			}
		}()
	}
}

// -----------------------------------------------------------------------------

// repairGap re-backfills a key after a live gap. Failures only log; the
// buffer keeps serving what it has and the next focus or gap retries.
func (h *ChartHub) repairGap(symbol string, timeframe models.MTimeframe) {
	key := fmt.Sprintf("%s:%s", symbol, timeframe.Key)

	h.mu.Lock()
	mode := h.backfillModeForKey(key)
	h.mu.Unlock()

	result, err := h.backfill.Backfill(symbol, timeframe, mode)
	if err != nil {
		h.logger.Warning("Gap repair backfill %s %s failed: %v", symbol, timeframe.Key, err)
		return
	}
	h.applyBackfill(key, symbol, timeframe, result)
}

// -----------------------------------------------------------------------------
// Snapshot assembly
// -----------------------------------------------------------------------------

func (h *ChartHub) buildSnapshot(focus models.MFocus, timeframe models.MTimeframe, buffered *BufferSnapshot, sessionMeta models.MSessionMeta) models.MChartSnapshot {
	bars := FilterBarsForSessionMode(buffered.Bars, focus.SessionMode, timeframe)

	// Staleness is per view: measure against the newest bar this socket can
	// actually see, not the unfiltered buffer.
	health := buffered.Health
	if health != nil {
		meta := health.MHealthMeta
		health = BuildHealth(&meta, lastTimestamp(bars))
	}

	session := sessionMeta
	session.Health = health
	if note := BuildSessionNote(focus.SessionMode, timeframe); note != "" {
		if session.Note != "" {
			session.Note = session.Note + " " + note
		} else {
			session.Note = note
		}
	}

	return models.MChartSnapshot{
		Symbol:    focus.Symbol,
		Timeframe: timeframe.Key,
		Bars:      bars,
		Health:    health,
		Session:   &session,
	}
}

// -----------------------------------------------------------------------------
// Operator surface
// -----------------------------------------------------------------------------

// BufferStats lists diagnostics for every active buffer.
func (h *ChartHub) BufferStats() []models.MBufferStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffers.AllStats()
}

// QualityMetrics returns the full quality record set with computed scores.
func (h *ChartHub) QualityMetrics() []models.MQualityMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffers.AllQualityMetrics()
}

// QualityMetricsForSymbol returns records for one symbol's active keys,
// or nil when the symbol has none.
func (h *ChartHub) QualityMetricsForSymbol(symbol string) []models.MQualityMetrics {
	normalized, ok := utils.NormalizeSymbol(symbol)
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var metrics []models.MQualityMetrics
	for _, key := range h.registry.FocusKeysForSymbol(normalized) {
		if m := h.buffers.QualityMetrics(key); m != nil {
			metrics = append(metrics, *m)
		}
	}
	return metrics
}

// QualityLogEntries returns up to limit recent data-quality events.
func (h *ChartHub) QualityLogEntries(limit int) []models.MQualityLogEntry {
	return h.qualityLog.Recent(limit)
}

// -----------------------------------------------------------------------------
// Internals (callers hold h.mu unless noted)
// -----------------------------------------------------------------------------

// backfillModeForKey picks the fetch session mode for a shared key: if any
// subscriber wants regular hours the fetch widens for regular so filtering
// cannot starve them; everyone still gets their own filtered view.
func (h *ChartHub) backfillModeForKey(key string) models.SessionMode {
	for _, socketID := range h.registry.SocketsForKey(key) {
		if focus := h.registry.FocusForSocket(socketID); focus != nil && focus.SessionMode == models.SessionRegular {
			return models.SessionRegular
		}
	}
	return models.SessionExtended
}

// -----------------------------------------------------------------------------

func (h *ChartHub) cleanupKeyIfUnused(key, symbol string) {
	if len(h.registry.SocketsForKey(key)) > 0 {
		return
	}
	h.buffers.Drop(key)
	h.builder.Drop(key)
	delete(h.timeframes, key)
	delete(h.sessionMeta, key)
	h.logger.Debug("Dropped idle chart key %s (%s)", key, symbol)
}

// -----------------------------------------------------------------------------

// refreshFeedSubscriptions reconciles the hub's held upstream references
// with the symbols that currently have at least one live-buildable
// (minute-timespan) focus key. The hub holds at most one reference per
// symbol; the gateway refcounts across holders.
func (h *ChartHub) refreshFeedSubscriptions() {
	if h.feed == nil {
		return
	}

	desired := make(map[string]struct{})
	for key, timeframe := range h.timeframes {
		if timeframe.Timespan != "minute" {
			continue
		}
		if len(h.registry.SocketsForKey(key)) == 0 {
			continue
		}
		symbol := h.symbolForKey(key)
		if symbol == "" || !h.feed.Supports(symbol) {
			continue
		}
		desired[symbol] = struct{}{}
	}

	for symbol := range desired {
		if _, held := h.feedSymbols[symbol]; !held {
			h.feedSymbols[symbol] = struct{}{}
			h.feed.SubscribeAggregates(symbol)
		}
	}
	for symbol := range h.feedSymbols {
		if _, wanted := desired[symbol]; !wanted {
			delete(h.feedSymbols, symbol)
			h.feed.UnsubscribeAggregates(symbol)
		}
	}
}

// -----------------------------------------------------------------------------

func (h *ChartHub) symbolForKey(key string) string {
	if stats := h.buffers.Stats(key); stats != nil {
		return stats.Symbol
	}
	return ""
}

// -----------------------------------------------------------------------------

// recordQuality mirrors an event into the in-memory log and, when a store
// is wired, the persistent archive. Safe to call without the lock.
func (h *ChartHub) recordQuality(eventType, symbol, timeframe, message string, details map[string]interface{}) {
	entry := h.qualityLog.Record(eventType, symbol, timeframe, message, details)
	if h.store == nil {
		return
	}
	go func() {
		if err := h.store.SaveQualityEvents([]models.MQualityLogEntry{entry}); err != nil {
			h.logger.Debug("Persisting quality event failed: %v", err)
		}
	}()
}

// -----------------------------------------------------------------------------

func (h *ChartHub) gapFactor() float64 {
	if h.config.GapFactor > 0 {
		return h.config.GapFactor
	}
	return DefaultGapFactor
}

func (h *ChartHub) extremeMoveThreshold() float64 {
	if h.config.ExtremeMoveThreshold > 0 {
		return h.config.ExtremeMoveThreshold
	}
	return DefaultExtremeMoveThreshold
}
