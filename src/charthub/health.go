package charthub

import (
	"sync"
	"time"

	"chart-hub/src/logger"
	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// Health derivation and the data-quality event log.
// -----------------------------------------------------------------------------

// BuildHealth combines stored meta with staleness relative to the newest
// bar. Nil meta means the key has never completed a backfill; there is
// nothing honest to report yet.
func BuildHealth(meta *models.MHealthMeta, lastTimestamp *int64) *models.MHealthState {
	if meta == nil {
		return nil
	}
	state := &models.MHealthState{MHealthMeta: *meta}
	if lastTimestamp != nil {
		ago := time.Now().UnixMilli() - *lastTimestamp
		if ago < 0 {
			ago = 0
		}
		state.LastUpdateMsAgo = &ago
	}
	return state
}

// -----------------------------------------------------------------------------

// ComputeQualityScore maps a quality record to 0..100, higher is better.
// Deduction weights are display heuristics for the dashboard.
func ComputeQualityScore(m models.MQualityMetrics) int {
	score := 100

	switch m.Mode {
	case models.ModeDegraded:
		score -= 30
	case models.ModeBackfilling:
		score -= 15
	case models.ModeFrozen:
		score -= 10
	}

	// Staleness: more than two minutes is bad for live data.
	if m.LastUpdateMsAgo != nil {
		if *m.LastUpdateMsAgo > 120_000 {
			score -= 25
		} else if *m.LastUpdateMsAgo > 60_000 {
			score -= 10
		}
	}

	if deduction := m.GapsDetected * 5; deduction > 20 {
		score -= 20
	} else {
		score -= deduction
	}

	if deduction := m.AnomalyCount * 3; deduction > 15 {
		score -= 15
	} else {
		score -= deduction
	}

	if m.ProviderThrottled {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	return score
}

// -----------------------------------------------------------------------------
// QualityLog - bounded in-memory ring of recent data-quality events
// -----------------------------------------------------------------------------

type QualityLog struct {
	mu      sync.Mutex
	entries []models.MQualityLogEntry
	max     int
	logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewQualityLog(max int, log *logger.Logger) *QualityLog {
	if max <= 0 {
		max = 100
	}
	return &QualityLog{max: max, logger: log}
}

// -----------------------------------------------------------------------------

// Record appends an event, evicting the oldest when full, and mirrors it to
// the application log.
func (l *QualityLog) Record(eventType, symbol, timeframe, message string, details map[string]interface{}) models.MQualityLogEntry {
	entry := models.MQualityLogEntry{
		Type:      eventType,
		Symbol:    symbol,
		Timeframe: timeframe,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UnixMilli(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Info("[%s] %s %s: %s", eventType, symbol, timeframe, message)
	}
	return entry
}

// -----------------------------------------------------------------------------

// Recent returns up to limit newest entries, oldest first.
func (l *QualityLog) Recent(limit int) []models.MQualityLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	recent := make([]models.MQualityLogEntry, limit)
	copy(recent, l.entries[len(l.entries)-limit:])
	return recent
}
