package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Coercion helpers for loosely-typed upstream payloads
// -----------------------------------------------------------------------------

// CoerceFloat extracts a finite float from a JSON-decoded value.
func CoerceFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
		return 0, false
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// -----------------------------------------------------------------------------

// NormalizeSymbol trims and uppercases a ticker; empty results are rejected.
func NormalizeSymbol(value string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	return normalized, true
}
