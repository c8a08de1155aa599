package charthub

import (
	"fmt"
	"math"
	"sort"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// Candle validation and data-quality heuristics. Pure functions, no state.
// -----------------------------------------------------------------------------

// Default heuristic constants. Both are operational tuning values rather
// than correctness constraints, so they are overridable via MChartConfig.
const (
	DefaultGapFactor            = 1.5
	DefaultExtremeMoveThreshold = 0.20
)

// Anomaly is a soft data-quality flag. Anomalies are logged, not
// necessarily rejected.
type Anomaly struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// -----------------------------------------------------------------------------

// IsValidCandle checks a candle's internal consistency: finite OHLCV,
// h >= max(o,c), l <= min(o,c), non-negative volume, positive timestamp.
func IsValidCandle(c models.MCandle) bool {
	values := []float64{c.O, c.H, c.L, c.C, c.V}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if c.H < math.Max(c.O, c.C) {
		return false
	}
	if c.L > math.Min(c.O, c.C) {
		return false
	}
	if c.V < 0 {
		return false
	}
	return c.T > 0
}

// -----------------------------------------------------------------------------

// DetectAnomalies returns every quality flag for a candle: the hard
// validity violations plus soft signals (zero range, extreme move).
func DetectAnomalies(c models.MCandle, extremeMoveThreshold float64) []Anomaly {
	if extremeMoveThreshold <= 0 {
		extremeMoveThreshold = DefaultExtremeMoveThreshold
	}

	var anomalies []Anomaly

	for _, v := range []float64{c.O, c.H, c.L, c.C, c.V} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			anomalies = append(anomalies, Anomaly{Type: "invalid_value", Message: "non-finite OHLCV field"})
			break
		}
	}
	if c.H < math.Max(c.O, c.C) || c.L > math.Min(c.O, c.C) {
		anomalies = append(anomalies, Anomaly{
			Type:    "ohlc_violation",
			Message: fmt.Sprintf("high/low outside open/close range (o=%v h=%v l=%v c=%v)", c.O, c.H, c.L, c.C),
		})
	}
	if c.V < 0 {
		anomalies = append(anomalies, Anomaly{Type: "negative_volume", Message: fmt.Sprintf("volume %v below zero", c.V)})
	}
	if c.T <= 0 {
		anomalies = append(anomalies, Anomaly{Type: "invalid_timestamp", Message: fmt.Sprintf("timestamp %d is not positive", c.T)})
	}

	// Soft flags.
	if c.H == c.L && c.V > 0 {
		anomalies = append(anomalies, Anomaly{Type: "zero_range", Message: "bar traded volume with zero price range"})
	}
	if mid := (c.H + c.L) / 2; mid > 0 {
		if (c.H-c.L)/mid > extremeMoveThreshold {
			anomalies = append(anomalies, Anomaly{
				Type:    "extreme_move",
				Message: fmt.Sprintf("bar range %.2f%% of mid price exceeds %.0f%%", (c.H-c.L)/mid*100, extremeMoveThreshold*100),
			})
		}
	}

	return anomalies
}

// -----------------------------------------------------------------------------

// CountGaps counts missing intervals across a bar sequence. A pair of
// adjacent bars more than gapFactor x expectedMs apart contributes
// floor(diff/expectedMs)-1 missing bars. Health signal only, never a hard
// error.
func CountGaps(bars []models.MCandle, expectedMs int64, gapFactor float64) int {
	if len(bars) < 2 || expectedMs <= 0 {
		return 0
	}
	if gapFactor <= 0 {
		gapFactor = DefaultGapFactor
	}

	sorted := make([]models.MCandle, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].T < sorted[j].T })

	gaps := 0
	for i := 1; i < len(sorted); i++ {
		diff := sorted[i].T - sorted[i-1].T
		if float64(diff) > float64(expectedMs)*gapFactor {
			missing := int(diff/expectedMs) - 1
			if missing > 0 {
				gaps += missing
			}
		}
	}
	return gaps
}
