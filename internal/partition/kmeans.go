// Package partition splits large inputs into spatial batches that are
// optimised independently and merged.
package partition

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"taptimise/internal/opt"
)

const maxIterations = 100

// KMeans splits points into at most k spatial clusters using k-means++
// seeding and Lloyd iterations. Empty clusters are dropped, so fewer than
// k batches may come back.
func KMeans(points []opt.Point, k int, rng *rand.Rand) [][]opt.Point {
	n := len(points)
	if k <= 1 || n <= 1 {
		return [][]opt.Point{points}
	}
	if k > n {
		k = n
	}
	xy := make([][]float64, n)
	for i, p := range points {
		xy[i] = []float64{p.X, p.Y}
	}
	centres := seedCentres(xy, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	sums := make([][]float64, k)
	counts := make([]int, k)
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range xy {
			c := nearest(p, centres)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range sums {
			sums[c] = []float64{0, 0}
			counts[c] = 0
		}
		for i, p := range xy {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centres {
			if counts[c] > 0 {
				floats.ScaleTo(centres[c], 1/float64(counts[c]), sums[c])
			}
		}
	}

	batches := make([][]opt.Point, k)
	for i, p := range points {
		batches[labels[i]] = append(batches[labels[i]], p)
	}
	out := batches[:0]
	for _, b := range batches {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// seedCentres picks k initial centres, each after the first drawn with
// probability proportional to its squared distance from the nearest
// centre already chosen.
func seedCentres(xy [][]float64, k int, rng *rand.Rand) [][]float64 {
	centres := make([][]float64, 0, k)
	first := xy[rng.Intn(len(xy))]
	centres = append(centres, []float64{first[0], first[1]})

	d2 := make([]float64, len(xy))
	cum := make([]float64, len(xy))
	for len(centres) < k {
		for i, p := range xy {
			d := floats.Distance(p, centres[nearest(p, centres)], 2)
			d2[i] = d * d
		}
		floats.CumSum(cum, d2)
		total := cum[len(cum)-1]
		var pick int
		if total == 0 {
			pick = rng.Intn(len(xy))
		} else {
			pick = sort.SearchFloat64s(cum, rng.Float64()*total)
			if pick >= len(xy) {
				pick = len(xy) - 1
			}
		}
		centres = append(centres, []float64{xy[pick][0], xy[pick][1]})
	}
	return centres
}

func nearest(p []float64, centres [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, centre := range centres {
		if d := floats.Distance(p, centre, 2); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

// ClusterCount is the number of batches needed so that no batch should
// need more than maxTapsPerBatch facilities.
func ClusterCount(points []opt.Point, capacity float64, maxTapsPerBatch int, safety float64) int {
	if capacity <= 0 || maxTapsPerBatch <= 0 {
		return 1
	}
	if safety <= 0 {
		safety = 1
	}
	total := 0.0
	for _, p := range points {
		total += p.Demand
	}
	taps := math.Ceil(total * safety / capacity)
	k := int(math.Ceil(taps / float64(maxTapsPerBatch)))
	if k < 1 {
		k = 1
	}
	return k
}
