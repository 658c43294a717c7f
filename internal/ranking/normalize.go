// Package ranking scores the universe each cycle: feature extraction,
// robust normalisation, weighted combination, and a greedy pairwise
// correlation filter over the top of the board.
package ranking

import (
	"math"
	"sort"
)

const normEps = 1e-12

// RobustMinMax normalises values into [0,1]: clip to median ± 3·IQR,
// then min-max over the clipped set. A near-zero IQR falls back to a
// plain min-max; a near-zero range yields 0.5 everywhere. Non-finite
// inputs map to NaN.
func RobustMinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	med := quantile(finite, 0.5)
	iqr := quantile(finite, 0.75) - quantile(finite, 0.25)

	clip := func(v float64) float64 { return v }
	if iqr > normEps {
		lo, hi := med-3*iqr, med+3*iqr
		clip = func(v float64) float64 {
			if v < lo {
				return lo
			}
			if v > hi {
				return hi
			}
			return v
		}
	}

	mn, mx := math.Inf(1), math.Inf(-1)
	for _, v := range finite {
		c := clip(v)
		if c < mn {
			mn = c
		}
		if c > mx {
			mx = c
		}
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = math.NaN()
			continue
		}
		if mx-mn <= normEps {
			out[i] = 0.5
			continue
		}
		out[i] = (clip(v) - mn) / (mx - mn)
	}
	return out
}

// quantile computes the q-quantile of values with linear interpolation
// between order statistics.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
