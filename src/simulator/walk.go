package simulator

import (
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// walkBand bounds the walk to base*(1±walkBand).
const walkBand = 0.2

// RandomWalk is a seeded, bounded geometric random walk around a base price.
type RandomWalk struct {
	rng       *rand.Rand
	base      float64
	price     float64
	vol       float64
	precision int
}

// -----------------------------------------------------------------------------

func NewRandomWalk(seed int64, base, vol float64, precision int) *RandomWalk {
	if base <= 0 {
		base = 100
	}
	return &RandomWalk{
		rng:       rand.New(rand.NewSource(seed)),
		base:      base,
		price:     base,
		vol:       vol,
		precision: precision,
	}
}

// Next advances the walk one step and returns the rounded price. Steps that
// would leave the band are reflected back inside it.
func (w *RandomWalk) Next() float64 {
	next := w.price * (1 + w.vol*w.rng.NormFloat64())
	lo, hi := w.base*(1-walkBand), w.base*(1+walkBand)
	if next > hi {
		next = hi - (next - hi)
	}
	if next < lo {
		next = lo + (lo - next)
	}
	w.price = math.Min(math.Max(next, lo), hi)
	return Round(w.price, w.precision)
}

// Volume returns a synthetic trade size for the current step.
func (w *RandomWalk) Volume() float64 {
	return Round(1+w.rng.ExpFloat64()*10, 4)
}

// -----------------------------------------------------------------------------

// Round fixes p to precision decimal places.
func Round(p float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	return decimal.NewFromFloat(p).Round(int32(precision)).InexactFloat64()
}

// seedFor derives a stable per-key seed from the simulator seed.
func seedFor(seed int64, parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return seed ^ int64(h.Sum64())
}
