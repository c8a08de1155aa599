package charthub

import (
	"sort"
	"time"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// CandleBufferStore - in-memory per-(symbol,timeframe) candle sequences.
//
// An explicit state object rather than package-level maps so that several
// independent hubs (one per test, for instance) can coexist. Callers
// serialize access; the store itself carries no locks, the owning hub's
// mutex is the synchronization point.
// -----------------------------------------------------------------------------

type bufferState struct {
	Symbol        string
	Timeframe     string
	Bars          []models.MCandle
	HealthMeta    *models.MHealthMeta
	LastMergeTime int64
	AnomalyCount  int
}

type BufferSnapshot struct {
	Bars   []models.MCandle
	Health *models.MHealthState
}

type CandleBufferStore struct {
	buffers map[string]*bufferState
}

// -----------------------------------------------------------------------------

func NewCandleBufferStore() *CandleBufferStore {
	return &CandleBufferStore{buffers: make(map[string]*bufferState)}
}

// -----------------------------------------------------------------------------

// GetOrCreate ensures a buffer exists for the key.
func (s *CandleBufferStore) GetOrCreate(key, symbol, timeframe string) {
	if _, ok := s.buffers[key]; ok {
		return
	}
	s.buffers[key] = &bufferState{
		Symbol:    symbol,
		Timeframe: timeframe,
	}
}

// -----------------------------------------------------------------------------

// ReplaceBars swaps the whole sequence for a backfilled batch. Backfilled
// data is authoritative and closed: dedup by timestamp (last wins), sort
// ascending, force every bar final, truncate to the newest maxBars.
func (s *CandleBufferStore) ReplaceBars(key string, candles []models.MCandle, maxBars int) {
	buffer, ok := s.buffers[key]
	if !ok {
		return
	}

	normalized := normalizeCandles(candles)
	for i := range normalized {
		normalized[i].IsFinal = true
	}
	buffer.Bars = enforceBarLimit(normalized, maxBars)
	buffer.LastMergeTime = time.Now().UnixMilli()
}

// -----------------------------------------------------------------------------

// UpsertCandle folds one live candle into the sequence. Same timestamp
// replaces in place; a timestamp older than the last bar is silently
// dropped (late out-of-order event - history is never reordered);
// otherwise append. A new arrival implies the previous bucket closed, so
// any earlier partial bar is forced final.
func (s *CandleBufferStore) UpsertCandle(key string, candle models.MCandle, maxBars int) {
	buffer, ok := s.buffers[key]
	if !ok {
		return
	}

	existingIndex := -1
	for i := range buffer.Bars {
		if buffer.Bars[i].T == candle.T {
			existingIndex = i
			break
		}
	}

	if existingIndex >= 0 {
		buffer.Bars[existingIndex] = candle
	} else {
		if n := len(buffer.Bars); n > 0 && candle.T < buffer.Bars[n-1].T {
			return
		}
		buffer.Bars = append(buffer.Bars, candle)
	}

	// Defensive re-sort; appends keep order but replacement paths are cheap
	// to guard uniformly.
	sort.Slice(buffer.Bars, func(i, j int) bool { return buffer.Bars[i].T < buffer.Bars[j].T })
	enforceSinglePartial(buffer.Bars)
	buffer.Bars = enforceBarLimit(buffer.Bars, maxBars)
}

// -----------------------------------------------------------------------------

// Snapshot returns a copy of the sequence plus the derived health state.
func (s *CandleBufferStore) Snapshot(key string) *BufferSnapshot {
	buffer, ok := s.buffers[key]
	if !ok {
		return nil
	}
	bars := make([]models.MCandle, len(buffer.Bars))
	copy(bars, buffer.Bars)
	return &BufferSnapshot{
		Bars:   bars,
		Health: BuildHealth(buffer.HealthMeta, lastTimestamp(buffer.Bars)),
	}
}

// -----------------------------------------------------------------------------

func (s *CandleBufferStore) HealthMetaFor(key string) *models.MHealthMeta {
	buffer, ok := s.buffers[key]
	if !ok {
		return nil
	}
	return buffer.HealthMeta
}

func (s *CandleBufferStore) SetHealthMeta(key string, meta models.MHealthMeta) {
	buffer, ok := s.buffers[key]
	if !ok {
		return
	}
	buffer.HealthMeta = &meta
}

func (s *CandleBufferStore) IncrementAnomalyCount(key string) {
	if buffer, ok := s.buffers[key]; ok {
		buffer.AnomalyCount++
	}
}

// LastTimestamp returns the newest bar timestamp, or nil for an empty or
// unknown buffer.
func (s *CandleBufferStore) LastTimestamp(key string) *int64 {
	buffer, ok := s.buffers[key]
	if !ok {
		return nil
	}
	return lastTimestamp(buffer.Bars)
}

// Drop removes a buffer entirely (key no longer focused by anyone).
func (s *CandleBufferStore) Drop(key string) {
	delete(s.buffers, key)
}

// -----------------------------------------------------------------------------
// Diagnostics
// -----------------------------------------------------------------------------

// Stats describes one buffer for the operator endpoints.
func (s *CandleBufferStore) Stats(key string) *models.MBufferStats {
	buffer, ok := s.buffers[key]
	if !ok {
		return nil
	}
	return buildStats(buffer)
}

// AllStats lists every active buffer.
func (s *CandleBufferStore) AllStats() []models.MBufferStats {
	stats := make([]models.MBufferStats, 0, len(s.buffers))
	for _, buffer := range s.buffers {
		stats = append(stats, *buildStats(buffer))
	}
	return stats
}

// -----------------------------------------------------------------------------

// QualityMetrics builds the full per-buffer quality record.
func (s *CandleBufferStore) QualityMetrics(key string) *models.MQualityMetrics {
	buffer, ok := s.buffers[key]
	if !ok {
		return nil
	}

	m := models.MQualityMetrics{
		Symbol:       buffer.Symbol,
		Timeframe:    buffer.Timeframe,
		Mode:         models.ModeDegraded,
		Source:       models.HealthSourceCache,
		BarCount:     len(buffer.Bars),
		AnomalyCount: buffer.AnomalyCount,
		UpdatedAt:    buffer.LastMergeTime,
	}
	if buffer.HealthMeta != nil {
		m.Mode = buffer.HealthMeta.Mode
		m.Source = buffer.HealthMeta.Source
		m.GapsDetected = buffer.HealthMeta.GapsDetected
		m.ProviderThrottled = buffer.HealthMeta.ProviderThrottled
	}
	if last := lastTimestamp(buffer.Bars); last != nil {
		m.LastTimestamp = last
		ago := time.Now().UnixMilli() - *last
		m.LastUpdateMsAgo = &ago
	}
	m.QualityScore = ComputeQualityScore(m)
	return &m
}

// AllQualityMetrics returns quality records for every active buffer.
func (s *CandleBufferStore) AllQualityMetrics() []models.MQualityMetrics {
	metrics := make([]models.MQualityMetrics, 0, len(s.buffers))
	for key := range s.buffers {
		if m := s.QualityMetrics(key); m != nil {
			metrics = append(metrics, *m)
		}
	}
	return metrics
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func buildStats(buffer *bufferState) *models.MBufferStats {
	partialCount := 0
	for _, bar := range buffer.Bars {
		if !bar.IsFinal {
			partialCount++
		}
	}
	stats := &models.MBufferStats{
		Symbol:       buffer.Symbol,
		Timeframe:    buffer.Timeframe,
		BarCount:     len(buffer.Bars),
		PartialCount: partialCount,
		HealthMeta:   buffer.HealthMeta,
	}
	if len(buffer.Bars) > 0 {
		oldest := buffer.Bars[0].T
		stats.OldestTimestamp = &oldest
	}
	stats.NewestTimestamp = lastTimestamp(buffer.Bars)
	return stats
}

// -----------------------------------------------------------------------------

func lastTimestamp(bars []models.MCandle) *int64 {
	if len(bars) == 0 {
		return nil
	}
	t := bars[len(bars)-1].T
	return &t
}

// -----------------------------------------------------------------------------

// normalizeCandles dedups by timestamp (last write wins) and sorts
// ascending.
func normalizeCandles(candles []models.MCandle) []models.MCandle {
	byTimestamp := make(map[int64]models.MCandle, len(candles))
	for _, bar := range candles {
		byTimestamp[bar.T] = bar
	}
	normalized := make([]models.MCandle, 0, len(byTimestamp))
	for _, bar := range byTimestamp {
		normalized = append(normalized, bar)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].T < normalized[j].T })
	return normalized
}

// -----------------------------------------------------------------------------

// enforceSinglePartial forces every non-final bar except the chronologically
// last one to final, in place. Consumers must never see two in-progress bars
// for one series.
func enforceSinglePartial(bars []models.MCandle) {
	lastPartialIndex := -1
	for i := range bars {
		if !bars[i].IsFinal {
			lastPartialIndex = i
		}
	}
	if lastPartialIndex == -1 {
		return
	}
	for i := range bars {
		if i != lastPartialIndex {
			bars[i].IsFinal = true
		}
	}
}

// -----------------------------------------------------------------------------

func enforceBarLimit(bars []models.MCandle, maxBars int) []models.MCandle {
	if maxBars <= 0 || len(bars) <= maxBars {
		return bars
	}
	return bars[len(bars)-maxBars:]
}
