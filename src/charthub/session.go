package charthub

import (
	"sync"
	"time"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// Regular-session filtering.
//
// Time-of-day only: weekends and holidays are assumed filtered upstream by
// market-status, so this deliberately does not consult the trading
// calendar.
// -----------------------------------------------------------------------------

const (
	regularSessionStartMinutes = 9*60 + 30
	regularSessionEndMinutes   = 16 * 60
)

var (
	nyLocationOnce sync.Once
	nyLocation     *time.Location
)

func newYorkLocation() *time.Location {
	nyLocationOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC // Worst case
		}
		nyLocation = loc
	})
	return nyLocation
}

// -----------------------------------------------------------------------------

// IsRegularSessionTimestamp reports whether the epoch-ms timestamp falls in
// 09:30-16:00 New York wall-clock time.
func IsRegularSessionTimestamp(timestamp int64) bool {
	local := time.UnixMilli(timestamp).In(newYorkLocation())
	minuteOfDay := local.Hour()*60 + local.Minute()
	return minuteOfDay >= regularSessionStartMinutes && minuteOfDay < regularSessionEndMinutes
}

// -----------------------------------------------------------------------------

// FilterBarsForSessionMode drops extended-hours bars for regular-mode
// intraday charts. Extended mode and daily timeframes pass through
// untouched.
func FilterBarsForSessionMode(bars []models.MCandle, mode models.SessionMode, timeframe models.MTimeframe) []models.MCandle {
	if mode != models.SessionRegular {
		return bars
	}
	if timeframe.Timespan == "day" {
		return bars
	}
	filtered := make([]models.MCandle, 0, len(bars))
	for _, bar := range bars {
		if IsRegularSessionTimestamp(bar.T) {
			filtered = append(filtered, bar)
		}
	}
	return filtered
}

// -----------------------------------------------------------------------------

// BuildSessionNote returns the advisory note shown when regular-hours
// filtering is active, or "" when it is not.
func BuildSessionNote(mode models.SessionMode, timeframe models.MTimeframe) string {
	if mode != models.SessionRegular {
		return ""
	}
	if timeframe.Timespan == "day" {
		return ""
	}
	return "Regular trading hours only (9:30-16:00 ET)."
}
