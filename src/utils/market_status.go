package utils

import (
	"time"

	"chart-hub/src/models"
)

// -----------------------------------------------------------------------------
// MarketStatusProvider derives the market-status echo fields (state, next
// open/close) from the trading calendar.
// -----------------------------------------------------------------------------

type MarketStatusProvider struct {
	Calendar *TradingCalendar
}

// -----------------------------------------------------------------------------

func NewMarketStatusProvider() *MarketStatusProvider {
	return &MarketStatusProvider{Calendar: NewTradingCalendar()}
}

// -----------------------------------------------------------------------------

func (p *MarketStatusProvider) IsOpen(now time.Time) bool {
	return p.Calendar.IsOpenOnMinute(now)
}

// -----------------------------------------------------------------------------

func (p *MarketStatusProvider) IsAfterHours(now time.Time) bool {
	return p.Calendar.IsExtendedOnMinute(now)
}

// -----------------------------------------------------------------------------

// Snapshot captures the current session state in wire form.
func (p *MarketStatusProvider) Snapshot(now time.Time) models.MMarketStatus {
	state := "closed"
	if p.IsOpen(now) {
		state = "open"
	} else if p.IsAfterHours(now) {
		state = "extended-hours"
	}

	status := models.MMarketStatus{
		State: state,
		AsOf:  now.UTC().Format(time.RFC3339),
	}

	if nextOpen, ok := p.nextOpen(now); ok {
		formatted := nextOpen.Format(time.RFC3339)
		status.NextOpen = &formatted
	}
	if nextClose, ok := p.nextClose(now); ok {
		formatted := nextClose.Format(time.RFC3339)
		status.NextClose = &formatted
	}

	return status
}

// -----------------------------------------------------------------------------

// nextOpen scans forward for the next 09:30 ET on a trading day. The scan
// is bounded; long exchange closures beyond it return no value.
func (p *MarketStatusProvider) nextOpen(now time.Time) (time.Time, bool) {
	loc := p.Calendar.Timezone
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	for day := 0; day <= 10; day++ {
		candidate := local.AddDate(0, 0, day)
		openAt := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 9, 30, 0, 0, loc)
		if !p.Calendar.IsTradingDay(openAt) {
			continue
		}
		if openAt.After(local) {
			return openAt, true
		}
	}
	return time.Time{}, false
}

// -----------------------------------------------------------------------------

// nextClose only applies while the market is open: 16:00 ET today.
func (p *MarketStatusProvider) nextClose(now time.Time) (time.Time, bool) {
	if !p.IsOpen(now) {
		return time.Time{}, false
	}
	loc := p.Calendar.Timezone
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, loc), true
}
