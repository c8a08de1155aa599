package models

// -----------------------------------------------------------------------------
// Focus - what a connected client currently wants to watch
// -----------------------------------------------------------------------------

type SessionMode string

const (
	SessionRegular  SessionMode = "regular"
	SessionExtended SessionMode = "extended"
)

// MFocus describes one client's chart subscription intent.
// A socket has exactly one focus at a time.
type MFocus struct {
	Symbol      string      `json:"symbol"`
	Timeframe   string      `json:"timeframe"`
	SessionMode SessionMode `json:"sessionMode"`
}

// -----------------------------------------------------------------------------

// MTimeframe is a resolved (multiplier, timespan) pair plus the default
// backfill window in bars.
type MTimeframe struct {
	Key        string `json:"key"`
	Multiplier int    `json:"multiplier"`
	Timespan   string `json:"timespan"` // "minute" | "hour" | "day"
	Window     int    `json:"window"`
}

// -----------------------------------------------------------------------------

// MSessionMeta annotates a snapshot with market-session context for the key.
type MSessionMeta struct {
	MarketClosed      bool          `json:"marketClosed"`
	AfterHours        bool          `json:"afterHours"`
	UsingLastSession  bool          `json:"usingLastSession"`
	ResultGranularity string        `json:"resultGranularity"` // "intraday" | "daily" | "cache"
	Note              string        `json:"note,omitempty"`
	State             string        `json:"state,omitempty"`
	NextOpen          *string       `json:"nextOpen"`
	NextClose         *string       `json:"nextClose"`
	FetchedAt         string        `json:"fetchedAt,omitempty"`
	Health            *MHealthState `json:"health,omitempty"`
}

// MMarketStatus echoes the upstream market-status fields.
type MMarketStatus struct {
	State     string  `json:"state"`
	NextOpen  *string `json:"nextOpen"`
	NextClose *string `json:"nextClose"`
	AsOf      string  `json:"asOf"`
}
