/*
PURPOSE:
  Outlier chain detection and the generation window used by Draw.

REQUIREMENTS:
  User-specified:
  - Drop chains stuck far below the rest before drawing.

  Implementation-discovered:
  - A chain is scored by its mean log-likelihood over the last half of
    the generations; burn-in would otherwise dominate.
  - Quartiles follow the linear closest-rank rule of numpy.percentile,
    so flagged chains match what DREAM reports for the same state.

ARCHITECTURE INTEGRATION:
  - Called by: MemoryStore, SQLiteStore
  - Uses: gonum.org/v1/gonum/stat

IMPLEMENTATION RULES:
  - Fewer than two chains never yields an outlier.

RELATED FILES:
  - internal/sampler/store.go
*/

package sampler

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// OutlierFactor scales the interquartile range below Q1 at which a chain is
// considered stuck.
const OutlierFactor = 2.0

// distinctGenerations returns the sorted set of generations present.
func distinctGenerations(samples []Sample) []int {
	seen := make(map[int]struct{})
	for _, s := range samples {
		seen[s.Generation] = struct{}{}
	}
	gens := make([]int, 0, len(seen))
	for g := range seen {
		gens = append(gens, g)
	}
	sort.Ints(gens)
	return gens
}

// chainScores returns each chain's mean log-likelihood over the last half
// of the generations.
func chainScores(samples []Sample) map[int]float64 {
	gens := distinctGenerations(samples)
	if len(gens) == 0 {
		return nil
	}
	from := gens[len(gens)/2]

	logp := make(map[int][]float64)
	for _, s := range samples {
		if s.Generation >= from {
			logp[s.Chain] = append(logp[s.Chain], s.LogP)
		}
	}
	scores := make(map[int]float64, len(logp))
	for c, v := range logp {
		scores[c] = stat.Mean(v, nil)
	}
	return scores
}

// iqrOutliers returns the chains scoring below Q1 - OutlierFactor*IQR, sorted.
func iqrOutliers(scores map[int]float64) []int {
	if len(scores) < 2 {
		return nil
	}
	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, v)
	}
	sort.Float64s(values)
	q1 := percentile(values, 0.25)
	q3 := percentile(values, 0.75)
	limit := q1 - OutlierFactor*(q3-q1)

	var out []int
	for c, v := range scores {
		if v < limit {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// percentile interpolates linearly between closest ranks of sorted, at
// 0-based rank q*(n-1). stat.LinInterp interpolates the empirical CDF at
// rank p*n instead, so q is mapped onto that scale first.
func percentile(sorted []float64, q float64) float64 {
	n := float64(len(sorted))
	p := math.Min(1, (1+q*(n-1))/n)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// firstKeptGeneration returns the oldest generation inside the last
// ceil(portion*G) generations.
func firstKeptGeneration(gens []int, portion float64) int {
	keep := int(math.Ceil(portion*float64(len(gens)) - 1e-9))
	keep = max(1, min(keep, len(gens)))
	return gens[len(gens)-keep]
}
