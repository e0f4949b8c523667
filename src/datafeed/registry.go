package datafeed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"
	"market-feed/src/utils"
)

// DefaultResolutions is advertised when a symbol lists none.
var DefaultResolutions = []string{"1", "5", "15", "30", "60", "240", "1D", "1W", "1M"}

// Registry is the symbol catalogue. Symbols are enriched with the timezone and
// session of their exchange calendar when added.
type Registry struct {
	mu        sync.RWMutex
	symbols   []models.MSymbol
	byName    map[string]int
	scheduler *utils.MarketScheduler
	log       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRegistry(symbols []models.MSymbol, log *logger.Logger) *Registry {
	r := &Registry{
		byName:    make(map[string]int),
		scheduler: utils.NewMarketScheduler(nil, log),
		log:       log,
	}
	r.Add(symbols...)
	return r
}

// -----------------------------------------------------------------------------

// Add inserts symbols not yet known by full name and reports how many were new.
func (r *Registry) Add(symbols ...models.MSymbol) int {
	r.mu.Lock()
	added := 0
	for _, s := range symbols {
		key := strings.ToUpper(s.FullName())
		if _, ok := r.byName[key]; ok || s.Ticker == "" {
			continue
		}
		r.byName[key] = len(r.symbols)
		r.symbols = append(r.symbols, s)
		added++
	}
	// Mapped under the lock so concurrent adds cannot publish a stale catalogue.
	if added > 0 {
		r.scheduler.MapSymbolsToCalendars(r.symbols)
	}
	r.mu.Unlock()
	return added
}

// -----------------------------------------------------------------------------

func (r *Registry) enrich(s models.MSymbol) models.MSymbol {
	if cal := r.scheduler.CalendarFor(s.FullName()); cal != nil {
		if s.Timezone == "" {
			s.Timezone = cal.TimezoneName()
		}
		if s.Session == "" {
			s.Session = cal.Session()
		}
	}
	if len(s.SupportedResolutions) == 0 {
		s.SupportedResolutions = append([]string(nil), DefaultResolutions...)
	}
	return s
}

// -----------------------------------------------------------------------------

// Search matches query case-insensitively against ticker and description.
// Non-empty exchange and symbolType must match exactly, ignoring case.
func (r *Registry) Search(query, exchange, symbolType string) []models.MSymbol {
	q := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.MSymbol{}
	for _, s := range r.symbols {
		if exchange != "" && !strings.EqualFold(s.Exchange, exchange) {
			continue
		}
		if symbolType != "" && !strings.EqualFold(s.Type, symbolType) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(s.Ticker), q) &&
			!strings.Contains(strings.ToLower(s.Description), q) {
			continue
		}
		out = append(out, r.enrich(s))
	}
	return out
}

// -----------------------------------------------------------------------------

// Resolve accepts EXCHANGE:TICKER or a bare ticker. A bare ticker listed on
// several exchanges resolves to the first one configured.
func (r *Registry) Resolve(name string) (models.MSymbol, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MSymbol{}, helpers.NewSymbolNotFound(name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.byName[strings.ToUpper(name)]; ok {
		return r.enrich(r.symbols[i]), nil
	}
	if !strings.Contains(name, ":") {
		for _, s := range r.symbols {
			if strings.EqualFold(s.Ticker, name) {
				return r.enrich(s), nil
			}
		}
	}
	return models.MSymbol{}, helpers.NewSymbolNotFound(name)
}

// LookupTicker resolves a bare upstream ticker.
func (r *Registry) LookupTicker(ticker string) (models.MSymbol, bool) {
	if strings.Contains(ticker, ":") {
		return models.MSymbol{}, false
	}
	sym, err := r.Resolve(ticker)
	return sym, err == nil
}

// -----------------------------------------------------------------------------

// Exchanges lists distinct exchanges, sorted.
func (r *Registry) Exchanges() []string {
	return r.distinct(func(s models.MSymbol) string { return s.Exchange })
}

// Types lists distinct symbol types, sorted.
func (r *Registry) Types() []string {
	return r.distinct(func(s models.MSymbol) string { return s.Type })
}

func (r *Registry) distinct(field func(models.MSymbol) string) []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, s := range r.symbols {
		if v := field(s); v != "" {
			seen[v] = struct{}{}
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// Symbols returns a copy of the catalogue in insertion order.
func (r *Registry) Symbols() []models.MSymbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.MSymbol, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the symbol's market is open at t.
func (r *Registry) IsOpen(fullName string, t time.Time) bool {
	return r.scheduler.IsOpen(fullName, t)
}

// AnyMarketOpen reports whether any catalogued market is open now.
func (r *Registry) AnyMarketOpen() bool {
	return r.scheduler.AnyMarketOpen()
}
