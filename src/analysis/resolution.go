package analysis

import (
	"strconv"
	"strings"

	"market-feed/src/logger"
)

// Fixed interval widths in seconds. A month is a fixed 30 days.
const (
	DefaultIntervalSeconds int64 = 60
	DaySeconds             int64 = 86400
	WeekSeconds            int64 = 7 * DaySeconds
	MonthSeconds           int64 = 30 * DaySeconds
)

// millisecondThreshold separates unix seconds from unix milliseconds.
const millisecondThreshold int64 = 1_000_000_000_000

// -----------------------------------------------------------------------------

// ResolutionSeconds maps a resolution string to its interval in seconds.
// Numeric strings are minutes; D, W and M suffixes are days, weeks and
// 30-day months; an S suffix is seconds. ok is false for anything else.
func ResolutionSeconds(resolution string) (int64, bool) {
	r := strings.ToUpper(strings.TrimSpace(resolution))
	if r == "" {
		return 0, false
	}

	if n, err := strconv.ParseInt(r, 10, 64); err == nil {
		if n <= 0 {
			return 0, false
		}
		return n * 60, true
	}

	unit := r[len(r)-1]
	count := int64(1)
	if len(r) > 1 {
		n, err := strconv.ParseInt(r[:len(r)-1], 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		count = n
	}

	switch unit {
	case 'S':
		if len(r) == 1 {
			return 0, false
		}
		return count, true
	case 'D':
		return count * DaySeconds, true
	case 'W':
		return count * WeekSeconds, true
	case 'M':
		return count * MonthSeconds, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------

// IntervalFor is ResolutionSeconds with the 60s fallback. Unknown resolutions
// are logged rather than rejected.
func IntervalFor(log *logger.Logger, resolution string) int64 {
	if secs, ok := ResolutionSeconds(resolution); ok {
		return secs
	}
	log.Warning("Unrecognized resolution '%s', falling back to %ds", resolution, DefaultIntervalSeconds)
	return DefaultIntervalSeconds
}

// -----------------------------------------------------------------------------

// BucketStart floors ts to the start of its interval bucket.
func BucketStart(ts, interval int64) int64 {
	if interval <= 0 {
		return ts
	}
	b := (ts / interval) * interval
	if ts < 0 && ts%interval != 0 {
		b -= interval
	}
	return b
}

// NormalizeTimestamp converts unix milliseconds to seconds and passes seconds through.
func NormalizeTimestamp(ts int64) int64 {
	if ts >= millisecondThreshold || ts <= -millisecondThreshold {
		return ts / 1000
	}
	return ts
}
