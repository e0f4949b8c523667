package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"market-feed/src/analysis"
	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

const (
	defaultPageLimit = 2000
	defaultMaxPages  = 10
)

// Fetcher resolves historical bar ranges through paginated queries against a
// history source, independent of the live stream.
type Fetcher struct {
	source     interfaces.IHistorySource
	pageLimit  int
	maxPages   int
	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// -----------------------------------------------------------------------------

func NewFetcher(source interfaces.IHistorySource, cfg models.MHistoryConfig, log *logger.Logger) *Fetcher {
	f := &Fetcher{
		source:     source,
		pageLimit:  cfg.PageLimit,
		maxPages:   cfg.MaxPages,
		maxRetries: cfg.MaxRetries,
		retryDelay: 250 * time.Millisecond,
		log:        log,
		now:        time.Now,
	}
	if f.pageLimit <= 0 {
		f.pageLimit = defaultPageLimit
	}
	if f.maxPages <= 0 {
		f.maxPages = defaultMaxPages
	}
	return f
}

// -----------------------------------------------------------------------------

// FetchBars walks backwards from period.To until period.From (or CountBack
// bars) is covered. Bars come back ascending with unique times.
//
// An empty window on the first request means there is no history. On later
// requests it is a gap when older bars exist, reported through NextTime.
func (f *Fetcher) FetchBars(ctx context.Context, symbol models.MSymbol, resolution string, period models.MPeriodParams) (models.MHistoryResult, error) {
	interval := analysis.IntervalFor(f.log, resolution)
	from := analysis.NormalizeTimestamp(period.From)
	to := analysis.NormalizeTimestamp(period.To)
	if to <= 0 {
		to = f.now().Unix()
	}
	if from > to {
		return models.MHistoryResult{}, helpers.NewHistoryFetchError(
			fmt.Sprintf("%s %s", symbol.FullName(), resolution),
			fmt.Errorf("invalid range: from %d is after to %d", from, to))
	}

	countBack := period.CountBack
	want := int((to-from)/interval) + 1
	if countBack > 0 {
		want = countBack
	}
	limit := clamp(want, 1, f.pageLimit)

	byTime := make(map[int64]models.MBar)
	var older int64
	hasOlder := false
	toTs := to

	for page := 0; page < f.maxPages; page++ {
		req := models.MHistoryPageRequest{Symbol: symbol, Resolution: resolution, Limit: limit, ToTs: toTs}
		op := fmt.Sprintf("history %s %s toTs=%d", symbol.FullName(), resolution, toTs)

		res, err := helpers.RetryWithBackoff(ctx, f.log, op, f.maxRetries, f.retryDelay,
			func(ctx context.Context) (models.MHistoryPage, error) {
				return f.source.FetchPage(ctx, req)
			})
		if err != nil {
			return models.MHistoryResult{}, helpers.NewHistoryFetchError(op, err)
		}
		if res.Response == "Error" {
			return models.MHistoryResult{}, helpers.NewHistoryFetchError(op, fmt.Errorf("source error: %s", res.Message))
		}
		if len(res.Data) == 0 {
			break
		}

		oldest := int64(0)
		for i, b := range res.Data {
			b.Time = analysis.NormalizeTimestamp(b.Time)
			if i == 0 || b.Time < oldest {
				oldest = b.Time
			}
			if b.Time > to {
				continue
			}
			if countBack <= 0 && b.Time < from {
				if !hasOlder || b.Time > older {
					older, hasOlder = b.Time, true
				}
				continue
			}
			byTime[b.Time] = b
		}

		if countBack > 0 && len(byTime) >= countBack {
			break
		}
		if countBack <= 0 && oldest <= from {
			break
		}
		if oldest-1 >= toTs {
			break
		}
		toTs = oldest - 1
	}

	bars := make([]models.MBar, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	if countBack > 0 && len(bars) > countBack {
		bars = bars[len(bars)-countBack:]
	}

	if len(bars) == 0 {
		if period.FirstDataRequest || !hasOlder {
			return models.MHistoryResult{Bars: []models.MBar{}, NoData: true}, nil
		}
		next := older
		return models.MHistoryResult{Bars: []models.MBar{}, NextTime: &next}, nil
	}

	f.log.Debug("Fetched %d bars for %s %s", len(bars), symbol.FullName(), resolution)
	return models.MHistoryResult{Bars: bars}, nil
}

// -----------------------------------------------------------------------------

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
