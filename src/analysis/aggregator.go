package analysis

import (
	"sync"

	"market-feed/src/models"
)

// BarAggregator buckets ticks for one (symbol, resolution) stream into OHLCV
// bars. Only one bucket is open at a time and history is never rewritten.
type BarAggregator struct {
	mu       sync.Mutex
	interval int64
	current  *models.MBar
}

// -----------------------------------------------------------------------------

func NewBarAggregator(intervalSeconds int64) *BarAggregator {
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultIntervalSeconds
	}
	return &BarAggregator{interval: intervalSeconds}
}

// -----------------------------------------------------------------------------

// Interval returns the bucket width in seconds.
func (a *BarAggregator) Interval() int64 {
	return a.interval
}

// -----------------------------------------------------------------------------

// Ingest folds one tick into the open bucket.
//
// finalized is the previous bucket when the tick opens a newer one. current is
// a copy of the open bucket after the update. Both are nil when the tick falls
// into a bucket older than the open one and was discarded.
func (a *BarAggregator) Ingest(tick models.MTick) (finalized *models.MBar, current *models.MBar) {
	ts := NormalizeTimestamp(tick.Timestamp)
	start := BucketStart(ts, a.interval)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.current == nil:
		a.current = openBar(start, tick)
	case start < a.current.Time:
		return nil, nil
	case start > a.current.Time:
		done := *a.current
		finalized = &done
		a.current = openBar(start, tick)
	default:
		updateBar(a.current, tick)
	}

	cur := *a.current
	return finalized, &cur
}

// -----------------------------------------------------------------------------

// Current returns a copy of the open bucket, or nil before the first tick.
func (a *BarAggregator) Current() *models.MBar {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	cur := *a.current
	return &cur
}

// Reset drops the open bucket. The next tick starts fresh.
func (a *BarAggregator) Reset() {
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()
}

// -----------------------------------------------------------------------------

func openBar(start int64, tick models.MTick) *models.MBar {
	bar := &models.MBar{
		Time:   start,
		Open:   tick.Price,
		High:   tick.Price,
		Low:    tick.Price,
		Close:  tick.Price,
		Volume: tick.Volume,
	}
	widen(bar, tick)
	return bar
}

func updateBar(bar *models.MBar, tick models.MTick) {
	if tick.Price > bar.High {
		bar.High = tick.Price
	}
	if tick.Price < bar.Low {
		bar.Low = tick.Price
	}
	bar.Close = tick.Price
	bar.Volume += tick.Volume
	widen(bar, tick)
}

// widen applies the optional tick high/low to the bucket extremes.
func widen(bar *models.MBar, tick models.MTick) {
	if tick.High != nil && *tick.High > bar.High {
		bar.High = *tick.High
	}
	if tick.Low != nil && *tick.Low < bar.Low {
		bar.Low = *tick.Low
	}
}
