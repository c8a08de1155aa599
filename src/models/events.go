package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Wire protocol (client websocket) and upstream feed events
// -----------------------------------------------------------------------------

// Client -> server and server -> client messages share one envelope.
type MChartCommand struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type MOutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Chart wire events.
const (
	EventChartFocus    = "chart:focus"
	EventChartCleared  = "chart:cleared"
	EventChartSnapshot = "chart:snapshot"
	EventChartUpdate   = "chart:update"
	EventChartError    = "chart:error"
)

// -----------------------------------------------------------------------------

// MFocusRequest is the chart:focus payload. An empty symbol clears focus.
type MFocusRequest struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	SessionMode string `json:"sessionMode"`
}

type MChartSnapshot struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Bars      []MCandle     `json:"bars"`
	Health    *MHealthState `json:"health"`
	Session   *MSessionMeta `json:"session"`
}

type MChartUpdate struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Bar       MCandle       `json:"bar"`
	Health    *MHealthState `json:"health"`
}

type MChartError struct {
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------

// Upstream aggregate event discriminators: "AM" closes out a minute,
// "A" is an in-progress slice of the current minute.
const (
	AggEventMinuteFinal  = "AM"
	AggEventMinuteUpdate = "A"
)

// MAggregateEvent is the strict internal form of a raw upstream tick event.
// The live feed gateway normalizes field aliases (sym/symbol, s/t) and
// timestamp units before anything downstream sees the event.
type MAggregateEvent struct {
	Symbol    string  `json:"symbol"`
	EventType string  `json:"eventType"`
	Start     int64   `json:"start"` // epoch ms
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// -----------------------------------------------------------------------------

// MAggregatesRequest / MAggregatesResult form the boundary with the external
// aggregates resolver, which owns its own caching and session fallback.
type MAggregatesRequest struct {
	Ticker     string `json:"ticker"`
	Multiplier int    `json:"multiplier"`
	Timespan   string `json:"timespan"`
	Window     int    `json:"window"`
}

type MAggregatesResult struct {
	Results           []MNormalizedBar `json:"results"`
	MarketClosed      bool             `json:"marketClosed"`
	AfterHours        bool             `json:"afterHours"`
	UsingLastSession  bool             `json:"usingLastSession"`
	ResultGranularity string           `json:"resultGranularity"`
	Note              string           `json:"note,omitempty"`
	Health            *MHealthMeta     `json:"health,omitempty"`
	MarketStatus      *MMarketStatus   `json:"marketStatus,omitempty"`
	FetchedAt         int64            `json:"fetchedAt"`
}
