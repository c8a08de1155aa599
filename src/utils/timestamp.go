package utils

import (
	"encoding/json"
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------

// EpochMillisThreshold separates epoch-seconds from epoch-millis values.
// Anything below it is treated as seconds and scaled up. 1e12 ms is
// September 2001, far earlier than any bar this system serves.
const EpochMillisThreshold = 1_000_000_000_000

// -----------------------------------------------------------------------------

// NormalizeTimestamp coerces a timestamp from any external boundary into
// epoch milliseconds UTC. Accepts epoch seconds, epoch millis (numbers or
// numeric strings) and ISO-8601 strings. This is the only place the
// seconds-vs-millis heuristic lives.
func NormalizeTimestamp(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return scaleEpoch(float64(v)), true
	case int:
		return scaleEpoch(float64(v)), true
	case float64:
		return scaleEpoch(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return scaleEpoch(f), true
		}
		return 0, false
	case string:
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			return parsed.UnixMilli(), true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return scaleEpoch(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// -----------------------------------------------------------------------------

func scaleEpoch(n float64) int64 {
	if n <= 0 {
		return int64(n)
	}
	if n < EpochMillisThreshold {
		return int64(n * 1000)
	}
	return int64(n)
}
