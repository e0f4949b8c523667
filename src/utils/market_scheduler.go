package utils

import (
	"sync"
	"time"

	"market-feed/src/logger"
	"market-feed/src/models"
)

// MarketScheduler maps catalogue symbols to their exchange calendars.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []models.MSymbol, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars replaces the symbol to calendar mapping.
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []models.MSymbol) {
	calendars := make(map[string]*TradingCalendar, len(symbols))
	byKey := make(map[string]*TradingCalendar)

	for _, sym := range symbols {
		key := sym.Exchange + "|" + sym.Type
		cal, ok := byKey[key]
		if !ok {
			cal = GetCalendar(sym.Exchange, sym.Type)
			byKey[key] = cal
		}
		calendars[sym.FullName()] = cal
	}

	ms.mu.Lock()
	ms.Calendars = calendars
	ms.mu.Unlock()

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d unique calendars.", len(symbols), len(byKey))
}

// -----------------------------------------------------------------------------

// CalendarFor returns the calendar of a symbol, or nil when it is unknown.
func (ms *MarketScheduler) CalendarFor(fullName string) *TradingCalendar {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.Calendars[fullName]
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the symbol's market is open at t. Unknown symbols are
// treated as closed.
func (ms *MarketScheduler) IsOpen(fullName string, t time.Time) bool {
	cal := ms.CalendarFor(fullName)
	if cal == nil {
		return false
	}
	return cal.IsOpenAt(t)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any tracked market is currently open.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	seen := make(map[*TradingCalendar]bool)
	for _, cal := range ms.Calendars {
		if seen[cal] {
			continue
		}
		seen[cal] = true
		if cal.IsOpenAt(now) {
			return true
		}
	}
	return false
}
