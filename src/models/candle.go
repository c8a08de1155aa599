package models

// -----------------------------------------------------------------------------
// Candle - the atomic chart unit
// -----------------------------------------------------------------------------

// CandleSource tags where a candle came from. Provenance only, never used
// for correctness decisions.
type CandleSource string

const (
	SourceLive     CandleSource = "live"
	SourceBackfill CandleSource = "backfill"
	SourceCache    CandleSource = "cache"
	SourceSnapshot CandleSource = "snapshot"
)

// MCandle is one OHLCV bar for a fixed time bucket.
// T is the bar-open timestamp in epoch milliseconds UTC.
type MCandle struct {
	T       int64        `json:"t"`
	O       float64      `json:"o"`
	H       float64      `json:"h"`
	L       float64      `json:"l"`
	C       float64      `json:"c"`
	V       float64      `json:"v"`
	IsFinal bool         `json:"isFinal"`
	Source  CandleSource `json:"source"`
}

// -----------------------------------------------------------------------------

// MNormalizedBar is the upstream aggregates shape. T may arrive as epoch
// seconds, epoch millis or an ISO-8601 string; utils.NormalizeTimestamp
// resolves it at the boundary.
type MNormalizedBar struct {
	T  interface{} `json:"t"`
	O  float64     `json:"o"`
	H  float64     `json:"h"`
	L  float64     `json:"l"`
	C  float64     `json:"c"`
	V  float64     `json:"v"`
	VW float64     `json:"vw,omitempty"`
	N  int64       `json:"n,omitempty"`
}
