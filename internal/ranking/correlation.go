package ranking

import (
	"fmt"
	"math"
)

// Pearson computes the Pearson correlation of two equal-tail series.
// Inputs of different lengths are compared over their common tail.
// Degenerate inputs (short or zero-variance) return 0.
func Pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA <= 0 || varB <= 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// GreedyFilter walks symbols in score order and admits each one only if
// its absolute correlation against every already-admitted symbol stays
// within maxAbsCorr, stopping at topN. If fewer than topN survive, the
// next highest-scored rejects are padded back in.
func GreedyFilter(order []string, returns map[string][]float64, maxAbsCorr float64, topN int) (selected []string, excluded map[string]string) {
	excluded = make(map[string]string)
	for _, sym := range order {
		if len(selected) >= topN {
			break
		}
		blocked := ""
		for _, have := range selected {
			c := Pearson(returns[sym], returns[have])
			if math.Abs(c) > maxAbsCorr {
				blocked = fmt.Sprintf("correlation filter: |corr(%s,%s)|=%.2f > %.2f", sym, have, math.Abs(c), maxAbsCorr)
				break
			}
		}
		if blocked != "" {
			excluded[sym] = blocked
			continue
		}
		selected = append(selected, sym)
	}

	if len(selected) < topN {
		have := make(map[string]bool, len(selected))
		for _, s := range selected {
			have[s] = true
		}
		for _, sym := range order {
			if len(selected) >= topN {
				break
			}
			if have[sym] {
				continue
			}
			delete(excluded, sym)
			selected = append(selected, sym)
		}
	}
	return selected, excluded
}
