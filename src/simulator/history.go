package simulator

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"market-feed/src/analysis"
	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// HistorySource generates deterministic bars for the newest depth buckets of
// every resolution. The same (seed, symbol, resolution, time) always yields
// the same bar.
type HistorySource struct {
	seed    int64
	depth   int
	symbols map[string]models.MSymbol
	lookup  SymbolLookup
	log     *logger.Logger
	now     func() time.Time
}

// SymbolLookup finds symbols added after construction, by ticker.
type SymbolLookup func(ticker string) (models.MSymbol, bool)

// -----------------------------------------------------------------------------

func NewHistorySource(cfg models.MSimulatorConfig, symbols []models.MSymbol, log *logger.Logger) *HistorySource {
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 1000
	}
	return &HistorySource{
		seed:    cfg.Seed,
		depth:   depth,
		symbols: indexByTicker(symbols),
		log:     log,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock. Tests use it to pin the newest bucket.
func (h *HistorySource) SetClock(now func() time.Time) {
	h.now = now
}

// SetLookup consults lookup for tickers missing from the initial catalogue.
func (h *HistorySource) SetLookup(lookup SymbolLookup) {
	h.lookup = lookup
}

func (h *HistorySource) Name() string {
	return "simulator"
}

// -----------------------------------------------------------------------------

func (h *HistorySource) FetchPage(ctx context.Context, req models.MHistoryPageRequest) (models.MHistoryPage, error) {
	if err := ctx.Err(); err != nil {
		return models.MHistoryPage{}, err
	}
	sym, ok := h.symbols[strings.ToUpper(req.Symbol.Ticker)]
	if !ok && h.lookup != nil {
		sym, ok = h.lookup(req.Symbol.Ticker)
	}
	if !ok {
		return models.MHistoryPage{}, helpers.NewSymbolNotFound(req.Symbol.Ticker)
	}

	interval := analysis.IntervalFor(h.log, req.Resolution)
	latest := analysis.BucketStart(h.now().Unix(), interval)
	earliest := latest - int64(h.depth-1)*interval

	end := latest
	if req.ToTs > 0 && req.ToTs < end {
		end = analysis.BucketStart(req.ToTs, interval)
	}
	if end < earliest || req.Limit <= 0 {
		return models.MHistoryPage{Data: []models.MBar{}}, nil
	}

	start := end - int64(req.Limit-1)*interval
	if start < earliest {
		start = earliest
	}

	bars := make([]models.MBar, 0, (end-start)/interval+1)
	for t := start; t <= end; t += interval {
		bars = append(bars, h.bar(sym, req.Resolution, t, interval))
	}
	return models.MHistoryPage{Data: bars, TimeFrom: start, TimeTo: end}, nil
}

// -----------------------------------------------------------------------------

func (h *HistorySource) bar(sym models.MSymbol, resolution string, t, interval int64) models.MBar {
	rng := rand.New(rand.NewSource(seedFor(h.seed, sym.Ticker, resolution, strconv.FormatInt(t, 10))))

	base := sym.BasePrice
	if base <= 0 {
		base = 100
	}
	vol := analysis.VolatilityFor(sym.Type, sym.Ticker) * math.Sqrt(float64(interval)/60)
	cycle := float64(interval) * 250
	mid := base * (1 + 0.05*math.Sin(2*math.Pi*float64(t)/cycle))

	open := mid * (1 + vol*rng.NormFloat64())
	cls := mid * (1 + vol*rng.NormFloat64())
	high := math.Max(open, cls) * (1 + vol*math.Abs(rng.NormFloat64()))
	low := math.Min(open, cls) * (1 - vol*math.Abs(rng.NormFloat64()))

	p := sym.PricePrecision
	return models.MBar{
		Time:   t,
		Open:   Round(open, p),
		High:   Round(high, p),
		Low:    Round(low, p),
		Close:  Round(cls, p),
		Volume: Round(100+rng.Float64()*900, 2),
	}
}

// -----------------------------------------------------------------------------

func indexByTicker(symbols []models.MSymbol) map[string]models.MSymbol {
	out := make(map[string]models.MSymbol, len(symbols))
	for _, s := range symbols {
		out[strings.ToUpper(s.Ticker)] = s
	}
	return out
}
