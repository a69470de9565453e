package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// band is the confidence range of one tier. Bands do not overlap, so a
// higher tier never scores below a lower one.
type band struct {
	low  float64
	high float64
}

var (
	samePackBand       = band{low: 0.60, high: 0.95}
	sameProductBand    = band{low: 0.35, high: 0.60}
	similarProductBand = band{low: 0.10, high: 0.35}
)

// singleSiblingConfidence scores a same-pack estimate backed by one sibling.
const singleSiblingConfidence = 0.70

// score places quality, in [0, 1], inside the band.
func (b band) score(quality float64) float64 {
	quality = math.Max(0, math.Min(1, quality))
	return round4(b.low + (b.high-b.low)*quality)
}

// sampleQuality grows with the number of comparables and shrinks with their
// spread, measured as the coefficient of variation.
func sampleQuality(values []decimal.Decimal) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	floats := make([]float64, n)
	var sum float64
	for i, v := range values {
		floats[i] = v.InexactFloat64()
		sum += floats[i]
	}
	avg := sum / float64(n)

	var variance float64
	for _, f := range floats {
		variance += (f - avg) * (f - avg)
	}
	variance /= float64(n)

	cv := 0.0
	if avg > 0 {
		cv = math.Sqrt(variance) / avg
	} else if variance > 0 {
		cv = 1
	}
	return float64(n) / float64(n+2) * (1 - math.Min(cv, 1))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
