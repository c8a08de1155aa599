package models

// -----------------------------------------------------------------------------
// Health signals shown to chart clients and operators
// -----------------------------------------------------------------------------

type HealthMode string

const (
	ModeLive        HealthMode = "LIVE"
	ModeDegraded    HealthMode = "DEGRADED"
	ModeBackfilling HealthMode = "BACKFILLING"
	ModeFrozen      HealthMode = "FROZEN"
)

type HealthSource string

const (
	HealthSourceWS       HealthSource = "ws"
	HealthSourceREST     HealthSource = "rest"
	HealthSourceCache    HealthSource = "cache"
	HealthSourceSnapshot HealthSource = "snapshot"
)

// -----------------------------------------------------------------------------

// MHealthMeta is the stored per-buffer health record.
type MHealthMeta struct {
	Mode              HealthMode   `json:"mode"`
	Source            HealthSource `json:"source"`
	ProviderThrottled bool         `json:"providerThrottled"`
	GapsDetected      int          `json:"gapsDetected"`
}

// MHealthState is the wire shape: meta plus staleness relative to the most
// recent bar. LastUpdateMsAgo is null when the buffer is empty.
type MHealthState struct {
	MHealthMeta
	LastUpdateMsAgo *int64 `json:"lastUpdateMsAgo"`
}

// -----------------------------------------------------------------------------

// MBufferStats describes one buffer for the /health/stats endpoint.
type MBufferStats struct {
	Symbol          string       `json:"symbol"`
	Timeframe       string       `json:"timeframe"`
	BarCount        int          `json:"barCount"`
	OldestTimestamp *int64       `json:"oldestTimestamp"`
	NewestTimestamp *int64       `json:"newestTimestamp"`
	PartialCount    int          `json:"partialCount"`
	HealthMeta      *MHealthMeta `json:"healthMeta"`
}

// MQualityMetrics is the full per-buffer quality record for the dashboard.
type MQualityMetrics struct {
	Symbol            string       `json:"symbol"`
	Timeframe         string       `json:"timeframe"`
	Mode              HealthMode   `json:"mode"`
	Source            HealthSource `json:"source"`
	BarCount          int          `json:"barCount"`
	GapsDetected      int          `json:"gapsDetected"`
	LastUpdateMsAgo   *int64       `json:"lastUpdateMsAgo"`
	LastTimestamp     *int64       `json:"lastTimestamp"`
	AnomalyCount      int          `json:"anomalyCount"`
	ProviderThrottled bool         `json:"providerThrottled"`
	UpdatedAt         int64        `json:"updatedAt"`
	QualityScore      int          `json:"qualityScore"`
}

// -----------------------------------------------------------------------------

// MQualityLogEntry is one recorded data-quality event (gap, anomaly, ...).
type MQualityLogEntry struct {
	Type      string                 `json:"type"`
	Symbol    string                 `json:"symbol"`
	Timeframe string                 `json:"timeframe"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Quality event types.
const (
	QualityEventGap         = "gap_detected"
	QualityEventAnomaly     = "anomaly"
	QualityEventModeChange  = "mode_change"
	QualityEventThrottled   = "throttled"
	QualityEventReconnected = "reconnected"
)
