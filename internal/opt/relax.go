package opt

import (
	"math"
	"math/rand"
)

// relax visits houses in random order and tries swapping each one's tap
// with each of its k nearest neighbours', k = round(houses/taps). A swap is
// kept only when the combined energy of the two taps drops. Tap positions
// are not recentred. Returns the number of swaps kept.
func (s *system) relax(rng *rand.Rand) int {
	n, nt := len(s.houses), len(s.taps)
	if n < 2 || nt < 2 {
		return 0
	}
	k := int(math.Round(float64(n) / float64(nt)))
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}

	idx := newNeighbourIndex(s.houses)
	swaps := 0
	var nbrs []int
	for _, i := range rng.Perm(n) {
		nbrs = idx.nearest(i, k, nbrs[:0])
		for _, j := range nbrs {
			ta, tb := s.houses[i].Tap, s.houses[j].Tap
			if ta == tb {
				continue
			}
			s.move(i, tb)
			s.move(j, ta)
			if s.score(ta)+s.score(tb) < 0 {
				swaps++
				continue
			}
			s.move(i, ta)
			s.move(j, tb)
			s.restore(ta)
			s.restore(tb)
		}
	}
	return swaps
}
