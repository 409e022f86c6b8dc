package opt

import "math"

// House is a fixed-demand point. Tap is the handle of the tap it is
// attached to, -1 when detached.
type House struct {
	X, Y      float64
	Demand    float64
	MaxSqDist float64 // <= 0 disables the walking-distance cap

	Tap  int
	slot int // index into the tap's member list
	Buf  Buffer
}

// Tap is a capacitated facility. SumX/SumY and Load are maintained
// incrementally by attach/detach; X/Y only move on centralise.
type Tap struct {
	X, Y       float64
	SumX, SumY float64
	Load       float64
	ExpLoad    float64
	Capacity   float64
	Energy     float64
	OldEnergy  float64

	houses []int
}

// Houses returns the handles of the attached houses. The slice is owned
// by the tap and must not be modified.
func (t *Tap) Houses() []int { return t.houses }

// system holds houses and taps in flat slices; every cross reference is
// an integer handle into them.
type system struct {
	houses []House
	taps   []Tap
	params EnergyParams
}

func newSystem(points []Point, numTaps int, capacity, expLoad, maxDist float64, bufSize int, params EnergyParams) *system {
	s := &system{
		houses: make([]House, len(points)),
		taps:   make([]Tap, numTaps),
		params: params,
	}
	for i, p := range points {
		md := maxDist
		if p.MaxDistance > 0 {
			md = p.MaxDistance
		}
		sq := -1.0
		if md > 0 {
			sq = md * md
		}
		s.houses[i] = House{X: p.X, Y: p.Y, Demand: p.Demand, MaxSqDist: sq, Tap: -1, slot: -1, Buf: NewBuffer(bufSize)}
	}
	for i := range s.taps {
		s.taps[i] = Tap{Capacity: capacity, ExpLoad: expLoad}
	}
	return s
}

// attach connects house h to tap t and folds its demand into the tap's
// aggregates. h must be detached.
func (s *system) attach(h, t int) {
	hs := &s.houses[h]
	tp := &s.taps[t]
	hs.slot = len(tp.houses)
	tp.houses = append(tp.houses, h)
	tp.SumX += hs.X * hs.Demand
	tp.SumY += hs.Y * hs.Demand
	tp.Load += hs.Demand
	hs.Tap = t
}

// detach removes house h from its tap. No-op for a detached house.
func (s *system) detach(h int) {
	hs := &s.houses[h]
	if hs.Tap < 0 {
		return
	}
	tp := &s.taps[hs.Tap]
	last := len(tp.houses) - 1
	moved := tp.houses[last]
	tp.houses[hs.slot] = moved
	s.houses[moved].slot = hs.slot
	tp.houses = tp.houses[:last]

	tp.SumX -= hs.X * hs.Demand
	tp.SumY -= hs.Y * hs.Demand
	tp.Load -= hs.Demand
	if len(tp.houses) == 0 {
		// drop accumulated rounding so an empty tap is exactly empty
		tp.SumX, tp.SumY, tp.Load = 0, 0, 0
	}
	hs.Tap = -1
	hs.slot = -1
}

// move is detach followed by attach.
func (s *system) move(h, t int) {
	s.detach(h)
	s.attach(h, t)
}

// centralise places tap t at the demand-weighted centroid of its houses.
func (s *system) centralise(t int) {
	tp := &s.taps[t]
	if tp.Load == 0 {
		return
	}
	tp.X = tp.SumX / tp.Load
	tp.Y = tp.SumY / tp.Load
}

func (s *system) sqDist(h, t int) float64 {
	dx := s.houses[h].X - s.taps[t].X
	dy := s.houses[h].Y - s.taps[t].Y
	return dx*dx + dy*dy
}

func (s *system) dist(h, t int) float64 { return math.Sqrt(s.sqDist(h, t)) }

func (s *system) totalDemand() float64 {
	total := 0.0
	for i := range s.houses {
		total += s.houses[i].Demand
	}
	return total
}

func (s *system) totalLoad() float64 {
	total := 0.0
	for i := range s.taps {
		total += s.taps[i].Load
	}
	return total
}

func (s *system) totalEnergy() float64 {
	total := 0.0
	for i := range s.taps {
		total += s.taps[i].Energy
	}
	return total
}

// leastLoaded returns the tap with the smallest load other than skip.
func (s *system) leastLoaded(skip int) int {
	best := -1
	for i := range s.taps {
		if i == skip {
			continue
		}
		if best < 0 || s.taps[i].Load < s.taps[best].Load {
			best = i
		}
	}
	return best
}

func (s *system) maxEnergy() float64 {
	m := 0.0
	for i := range s.taps {
		if s.taps[i].Energy > m {
			m = s.taps[i].Energy
		}
	}
	return m
}
