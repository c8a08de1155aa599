package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar wraps scmhub/calendar for the US equity/options session.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// NewTradingCalendar loads the NYSE calendar (MIC xnys). When the library
// cannot provide it, a simple Mon-Fri 09:30-16:00 ET fallback is used.
func NewTradingCalendar() *TradingCalendar {
	cal := calendar.GetCalendar("xnys")
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC 'xnys'. Using simple fallback (Mon-Fri 09:30-16:00 ET).")
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// Simple fallback: Mon-Fri
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	// Library handles IsHoliday / IsBusinessDay
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	// Normalize to timezone if available
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		if (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16 {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// IsExtendedOnMinute checks the pre-market (04:00-09:30) and after-hours
// (16:00-20:00) windows on a trading day.
func (tc *TradingCalendar) IsExtendedOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}
	if !tc.IsTradingDay(t) {
		return false
	}
	if tc.IsOpenOnMinute(t) {
		return false
	}

	minuteOfDay := t.Hour()*60 + t.Minute()
	preMarket := minuteOfDay >= 4*60 && minuteOfDay < 9*60+30
	afterHours := minuteOfDay >= 16*60 && minuteOfDay < 20*60
	return preMarket || afterHours
}
