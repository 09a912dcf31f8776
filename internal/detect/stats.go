package detect

import (
	"math"
	"sort"
)

// iqrBounds holds the Tukey fences of a sample set.
type iqrBounds struct {
	q1, q3 float64
	lo, hi float64
	valid  bool
}

// computeStats returns the 1.5*IQR fences. Fewer than four values, or a zero
// spread, yields invalid bounds and nothing is rejected.
func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:    q1,
		q3:    q3,
		lo:    q1 - 1.5*iqr,
		hi:    q3 + 1.5*iqr,
		valid: iqr > 0,
	}
}

// inliers drops values outside the fences.
func inliers(vals []float64) (kept []float64, rejected int) {
	b := computeStats(vals)
	if !b.valid {
		return vals, 0
	}
	for _, v := range vals {
		if v < b.lo || v > b.hi {
			rejected++
			continue
		}
		kept = append(kept, v)
	}
	return kept, rejected
}

// median of vals; 0 for an empty slice.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	return percentile(sorted, 50)
}

// percentile interpolates linearly between closest ranks of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
