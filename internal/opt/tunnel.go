package opt

import (
	"math/rand"
	"slices"
)

// tunnel relieves overloaded tap src by moving house h onto the least
// loaded other tap and rehoming that tap's previous houses. Each displaced
// house goes to the most recent other tap in its locality buffer, or to a
// random other tap when the buffer holds none. Every house moved has its
// buffer reset to its new tap. All touched taps are centralised and
// rescored; the summed energy change is returned.
func (s *system) tunnel(h, src int, rng *rand.Rand) float64 {
	dst := s.leastLoaded(src)
	displaced := slices.Clone(s.taps[dst].houses)

	s.move(h, dst)
	s.rehome(h, dst)

	touched := []int{src, dst}
	for _, o := range displaced {
		nt := s.recentOther(o, dst)
		if nt < 0 {
			nt = rng.Intn(len(s.taps) - 1)
			if nt >= dst {
				nt++
			}
		}
		s.move(o, nt)
		s.rehome(o, nt)
		if !slices.Contains(touched, nt) {
			touched = append(touched, nt)
		}
	}

	dE := 0.0
	for _, t := range touched {
		s.centralise(t)
		dE += s.score(t)
	}
	return dE
}

func (s *system) rehome(h, t int) {
	b := &s.houses[h].Buf
	b.Clear()
	b.Insert(t)
}

// recentOther walks h's buffer from newest to oldest and returns the first
// tap that is not t, or -1.
func (s *system) recentOther(h, t int) int {
	b := &s.houses[h].Buf
	for i := 0; i < b.Len(); i++ {
		if v, ok := b.Recent(i); ok && v != t {
			return v
		}
	}
	return -1
}
