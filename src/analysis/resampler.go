package analysis

import (
	"sort"

	"market-feed/src/models"
)

// ResampleBars merges finer bars into buckets of windowSeconds. Input order does
// not matter; output is ascending by bucket start. A window smaller than the
// source width yields the source bars re-bucketed, never split.
func ResampleBars(bars []models.MBar, windowSeconds int64) []models.MBar {
	if len(bars) == 0 || windowSeconds <= 0 {
		return nil
	}

	sorted := make([]models.MBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Time < sorted[j].Time
	})

	var results []models.MBar
	var cur *models.MBar

	for _, b := range sorted {
		start := BucketStart(b.Time, windowSeconds)
		if cur == nil || start != cur.Time {
			if cur != nil {
				results = append(results, *cur)
			}
			cur = &models.MBar{
				Time:   start,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if cur != nil {
		results = append(results, *cur)
	}

	return results
}
