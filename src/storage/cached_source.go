package storage

import (
	"context"
	"fmt"
	"time"

	"market-feed/src/analysis"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/models"
)

// baseResolution is the finest stored resolution, resampled when a coarser
// one is missing from the store.
const baseResolution = "1"

// maxBaseBars caps how many base bars one fallback page may read.
const maxBaseBars = 50000

// CachedSource persists every page fetched from the wrapped source and
// answers from the store when the source fails.
type CachedSource struct {
	source interfaces.IHistorySource
	store  interfaces.IBarStore
	log    *logger.Logger
	now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewCachedSource(source interfaces.IHistorySource, store interfaces.IBarStore, log *logger.Logger) *CachedSource {
	return &CachedSource{
		source: source,
		store:  store,
		log:    log,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (c *CachedSource) Name() string {
	return c.source.Name() + "+cache"
}

// -----------------------------------------------------------------------------

func (c *CachedSource) FetchPage(ctx context.Context, req models.MHistoryPageRequest) (models.MHistoryPage, error) {
	key := req.Symbol.FullName()

	page, err := c.source.FetchPage(ctx, req)
	if err == nil && page.Response != "Error" {
		if len(page.Data) > 0 {
			bars := make([]models.MBar, len(page.Data))
			for i, b := range page.Data {
				b.Time = analysis.NormalizeTimestamp(b.Time)
				bars[i] = b
			}
			if serr := c.store.SaveBars(key, req.Resolution, bars); serr != nil {
				c.log.Warning("Failed to cache %d bars for %s %s: %v", len(bars), key, req.Resolution, serr)
			}
		}
		return page, nil
	}
	if ctx.Err() != nil {
		return page, err
	}

	cause := err
	if cause == nil {
		cause = fmt.Errorf("source error: %s", page.Message)
	}

	bars, ferr := c.fallback(req)
	if ferr != nil {
		c.log.Error("Cache lookup failed for %s %s: %v", key, req.Resolution, ferr)
		return page, err
	}
	if len(bars) == 0 {
		return page, err
	}

	c.log.Warning("Source %s failed for %s %s (%v), serving %d cached bars",
		c.source.Name(), key, req.Resolution, cause, len(bars))
	return models.MHistoryPage{
		Data:     bars,
		TimeFrom: bars[0].Time,
		TimeTo:   bars[len(bars)-1].Time,
	}, nil
}

// -----------------------------------------------------------------------------

// fallback returns the newest stored bars at or before req.ToTs, resampling
// base bars when the requested resolution has none.
func (c *CachedSource) fallback(req models.MHistoryPageRequest) ([]models.MBar, error) {
	key := req.Symbol.FullName()
	to := req.ToTs
	if to <= 0 {
		to = c.now().Unix()
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 1
	}

	bars, err := c.store.LoadBars(key, req.Resolution, 0, to, limit)
	if err != nil || len(bars) > 0 {
		return bars, err
	}

	interval, ok := analysis.ResolutionSeconds(req.Resolution)
	if !ok || interval <= 60 || req.Resolution == baseResolution {
		return nil, nil
	}

	need := limit * int(interval/60)
	if need > maxBaseBars {
		need = maxBaseBars
	}
	base, err := c.store.LoadBars(key, baseResolution, 0, to, need)
	if err != nil || len(base) == 0 {
		return nil, err
	}

	out := analysis.ResampleBars(base, interval)
	// The oldest bucket is incomplete when the read was truncated.
	if len(base) == need && len(out) > 1 {
		out = out[1:]
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
