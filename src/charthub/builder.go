package charthub

import (
	"sort"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// MinuteBarBuilder - rolls raw streaming aggregate events into
// timeframe-bucketed candles.
//
// Only whole-minute timeframes are built live; hour/day series rely solely
// on backfill. Per focus key the builder keeps the latest event timestamp
// (out-of-order guard) and a bounded map of 1-minute bars that rollups are
// folded from.
// -----------------------------------------------------------------------------

const minuteMs = 60_000

type minuteBar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type builderState struct {
	lastSeen   int64
	minuteBars map[int64]*minuteBar
}

// BuildResult carries the rolled-up candle plus its bucket coordinates.
type BuildResult struct {
	Candle      models.MCandle
	MinuteStart int64
	BucketStart int64
}

type MinuteBarBuilder struct {
	maxMinuteBars int
	states        map[string]*builderState
}

// -----------------------------------------------------------------------------

func NewMinuteBarBuilder(maxMinuteBars int) *MinuteBarBuilder {
	return &MinuteBarBuilder{
		maxMinuteBars: maxMinuteBars,
		states:        make(map[string]*builderState),
	}
}

// -----------------------------------------------------------------------------

// Ingest folds one normalized aggregate event into the key's minute map and
// returns the updated bucket candle, or nil when the event is irrelevant
// (wrong symbol, non-minute timeframe, stale timestamp). Callers treat nil
// as "no update", not an error.
func (b *MinuteBarBuilder) Ingest(key, symbol string, timeframe models.MTimeframe, event models.MAggregateEvent) *BuildResult {
	if timeframe.Timespan != "minute" {
		return nil
	}
	if event.Symbol != symbol {
		return nil
	}
	if event.Start <= 0 {
		return nil
	}

	minuteStart := (event.Start / minuteMs) * minuteMs
	state := b.state(key)
	if event.Start < state.lastSeen {
		// Out-of-order delivery; drop rather than reorder.
		return nil
	}
	state.lastSeen = event.Start

	b.upsertMinuteBar(state, event, minuteStart)
	b.pruneMinuteBars(state)

	bucketMs := int64(timeframe.Multiplier) * minuteMs
	bucketStart := (minuteStart / bucketMs) * bucketMs
	bucketEnd := bucketStart + bucketMs

	bucketBars := make([]*minuteBar, 0, timeframe.Multiplier)
	for timestamp, bar := range state.minuteBars {
		if timestamp >= bucketStart && timestamp < bucketEnd {
			bucketBars = append(bucketBars, bar)
		}
	}
	if len(bucketBars) == 0 {
		return nil
	}
	sort.Slice(bucketBars, func(i, j int) bool { return bucketBars[i].Timestamp < bucketBars[j].Timestamp })

	aggregated := foldMinuteBars(bucketBars)

	// Final only when a completed-minute event closes out the bucket's last
	// minute; anything else leaves the bucket partial.
	isFinal := event.EventType == models.AggEventMinuteFinal && minuteStart+minuteMs >= bucketEnd

	return &BuildResult{
		Candle: models.MCandle{
			T:       bucketStart,
			O:       aggregated.Open,
			H:       aggregated.High,
			L:       aggregated.Low,
			C:       aggregated.Close,
			V:       aggregated.Volume,
			IsFinal: isFinal,
			Source:  models.SourceLive,
		},
		MinuteStart: minuteStart,
		BucketStart: bucketStart,
	}
}

// -----------------------------------------------------------------------------

// Drop discards the state for a key (last subscriber left).
func (b *MinuteBarBuilder) Drop(key string) {
	delete(b.states, key)
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (b *MinuteBarBuilder) state(key string) *builderState {
	if existing, ok := b.states[key]; ok {
		return existing
	}
	created := &builderState{minuteBars: make(map[int64]*minuteBar)}
	b.states[key] = created
	return created
}

// -----------------------------------------------------------------------------

// upsertMinuteBar seeds or merges the 1-minute bar for the event's minute.
// A completed-minute event is authoritative and always overwrites; an
// in-progress event merges into whatever is already there.
func (b *MinuteBarBuilder) upsertMinuteBar(state *builderState, event models.MAggregateEvent, minuteStart int64) {
	existing, ok := state.minuteBars[minuteStart]
	if !ok || event.EventType == models.AggEventMinuteFinal {
		state.minuteBars[minuteStart] = &minuteBar{
			Timestamp: minuteStart,
			Open:      event.Open,
			High:      event.High,
			Low:       event.Low,
			Close:     event.Close,
			Volume:    event.Volume,
		}
		return
	}

	if event.High > existing.High {
		existing.High = event.High
	}
	if event.Low < existing.Low {
		existing.Low = event.Low
	}
	existing.Close = event.Close
	existing.Volume += event.Volume
}

// -----------------------------------------------------------------------------

func (b *MinuteBarBuilder) pruneMinuteBars(state *builderState) {
	if b.maxMinuteBars <= 0 || len(state.minuteBars) <= b.maxMinuteBars {
		return
	}
	keys := make([]int64, 0, len(state.minuteBars))
	for timestamp := range state.minuteBars {
		keys = append(keys, timestamp)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	overflow := len(keys) - b.maxMinuteBars
	for _, timestamp := range keys[:overflow] {
		delete(state.minuteBars, timestamp)
	}
}

// -----------------------------------------------------------------------------

// foldMinuteBars aggregates sorted minute bars into one bucket bar:
// open=first, high=max, low=min, close=last, volume=sum.
func foldMinuteBars(bars []*minuteBar) minuteBar {
	folded := minuteBar{
		Timestamp: bars[0].Timestamp,
		Open:      bars[0].Open,
		High:      bars[0].High,
		Low:       bars[0].Low,
		Close:     bars[len(bars)-1].Close,
	}
	for _, bar := range bars {
		if bar.High > folded.High {
			folded.High = bar.High
		}
		if bar.Low < folded.Low {
			folded.Low = bar.Low
		}
		folded.Volume += bar.Volume
	}
	return folded
}
