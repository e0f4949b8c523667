package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// Sessions reported to charting clients.
const (
	SessionAlwaysOpen = "24x7"
	SessionRegular    = "0930-1600"
)

// exchangeMICs maps exchange names found in the symbol catalogue to ISO 10383
// MIC codes understood by scmhub/calendar.
var exchangeMICs = map[string]string{
	"NYSE":   "xnys",
	"NASDAQ": "xnas",
	"AMEX":   "xase",
	"LSE":    "xlon",
	"EPA":    "xpar",
	"XETRA":  "xfra",
	"AMS":    "xams",
	"SIX":    "xswx",
	"TSX":    "xtse",
	"TSE":    "xtks",
	"HKEX":   "xhkg",
	"ASX":    "xasx",
	"CME":    "xcme",
}

// TradingCalendar answers session questions for one exchange.
type TradingCalendar struct {
	Calendar   *calendar.Calendar
	Fallback   bool
	AlwaysOpen bool
	Timezone   *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar returns the calendar for an exchange and symbol type. Crypto and
// forex instruments trade around the clock in UTC.
func GetCalendar(exchange, symbolType string) *TradingCalendar {
	switch strings.ToLower(symbolType) {
	case "crypto", "forex":
		return &TradingCalendar{AlwaysOpen: true, Timezone: time.UTC}
	}

	mic, ok := exchangeMICs[strings.ToUpper(exchange)]
	if !ok {
		mic = "xnys"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// TimezoneName is the IANA name clients expect in symbol info.
func (tc *TradingCalendar) TimezoneName() string {
	if tc.Timezone == nil {
		return "Etc/UTC"
	}
	if tc.Timezone == time.UTC {
		return "Etc/UTC"
	}
	return tc.Timezone.String()
}

// Session is the trading-hours string clients expect in symbol info.
func (tc *TradingCalendar) Session() string {
	if tc.AlwaysOpen {
		return SessionAlwaysOpen
	}
	return SessionRegular
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenAt checks if the market is open at t.
func (tc *TradingCalendar) IsOpenAt(t time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}
		hour, minute := t.Hour(), t.Minute()
		// 09:30 - 16:00 local
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}
