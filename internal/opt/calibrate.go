package opt

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// randomise attaches every house to a uniformly random tap and reseeds its
// locality buffer with that tap.
func (s *system) randomise(rng *rand.Rand) {
	for h := range s.houses {
		s.detach(h)
		s.houses[h].Buf.Clear()
	}
	for h := range s.houses {
		t := rng.Intn(len(s.taps))
		s.attach(h, t)
		s.houses[h].Buf.Insert(t)
	}
}

// activeFloor is the energy, relative to the largest tap energy, below
// which a tap counts as idle: empty, or one house on its own centroid.
const activeFloor = 1e-9

// medianEnergy is the median energy of the non-idle taps, or 0 when every
// tap is idle.
func (s *system) medianEnergy() float64 {
	maxE := 0.0
	for i := range s.taps {
		maxE = max(maxE, s.taps[i].Energy)
	}
	if maxE <= 0 {
		return 0
	}
	es := make([]float64, 0, len(s.taps))
	for i := range s.taps {
		if e := s.taps[i].Energy; e > activeFloor*maxE {
			es = append(es, e)
		}
	}
	sort.Float64s(es)
	return stat.Quantile(0.5, stat.Empirical, es, nil)
}

// calibrate estimates kB as the mean, over runs random assignments, of the
// median non-idle tap energy. The last random assignment is left in place as the
// starting state.
func (s *system) calibrate(rng *rand.Rand, runs int) float64 {
	if runs < 1 {
		runs = 1
	}
	medians := make([]float64, runs)
	for r := 0; r < runs; r++ {
		s.randomise(rng)
		s.settle()
		medians[r] = s.medianEnergy()
	}
	return stat.Mean(medians, nil)
}
