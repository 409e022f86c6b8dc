package opt

import (
	"log/slog"
	"math"
)

// minScales is the floor on the number of detected length scales and the
// scale count used when multiscale detection is disabled.
const minScales = 2

// LengthScales estimates how many distinct order-of-magnitude bands the
// pairwise distances of points fall into. Distances are binned by
// floor(log10(d/dmin)); a bin holding at least n-1 pairs counts as one
// scale. Coincident pairs are excluded and reported through log.
func LengthScales(points []Point, log *slog.Logger) int {
	n := len(points)
	if n < 2 {
		return minScales
	}
	coincident := 0
	dmin := math.Inf(1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y)
			if d == 0 {
				coincident++
			} else if d < dmin {
				dmin = d
			}
		}
	}
	if coincident > 0 && log != nil {
		log.Warn("coincident_points_excluded", "pairs", coincident)
	}
	if math.IsInf(dmin, 1) {
		return minScales
	}

	// bin by decade above dmin
	bins := map[int]int{}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(points[i].X-points[j].X, points[i].Y-points[j].Y)
			if d == 0 {
				continue
			}
			bins[int(math.Floor(math.Log10(d/dmin)))]++
		}
	}
	scales := 0
	for _, c := range bins {
		if c >= n-1 {
			scales++
		}
	}
	if scales < minScales {
		scales = minScales
	}
	return scales
}
