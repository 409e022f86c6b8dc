package opt

import "math"

// EnergyParams are the tunable constants of the energy model.
type EnergyParams struct {
	// DistanceExponent k: a bond longer than its house's walking cap is
	// scaled by (d²/max²)^k before demand weighting.
	DistanceExponent float64 `yaml:"distanceExponent" json:"distanceExponent,omitempty"`
	// OverloadExponent p: an overloaded tap's energy is scaled by
	// (load/capacity)^p.
	OverloadExponent float64 `yaml:"overloadExponent" json:"overloadExponent,omitempty"`
	// DeviationBase B: every tap's energy is scaled by
	// B^(((load-expected)/expected)²). Values <= 1 disable the penalty.
	DeviationBase float64 `yaml:"deviationBase" json:"deviationBase,omitempty"`
}

// DefaultEnergyParams returns the stock penalty constants.
func DefaultEnergyParams() EnergyParams {
	return EnergyParams{DistanceExponent: 2, OverloadExponent: 6, DeviationBase: 100}
}

func (p EnergyParams) withDefaults() EnergyParams {
	d := DefaultEnergyParams()
	if p.DistanceExponent <= 0 {
		p.DistanceExponent = d.DistanceExponent
	}
	if p.OverloadExponent <= 0 {
		p.OverloadExponent = d.OverloadExponent
	}
	if p.DeviationBase == 0 {
		p.DeviationBase = d.DeviationBase
	}
	return p
}

// bondEnergy is the demand-weighted, cap-penalised squared distance
// between house h and tap t.
func (s *system) bondEnergy(t, h int) float64 {
	hs := &s.houses[h]
	sq := s.sqDist(h, t)
	if hs.MaxSqDist > 0 && sq > hs.MaxSqDist {
		sq *= math.Pow(sq/hs.MaxSqDist, s.params.DistanceExponent)
	}
	return sq * hs.Demand
}

// loadPenalty is the multiplicative overload and expectation-deviation
// factor for a tap carrying load.
func (s *system) loadPenalty(t int) float64 {
	tp := &s.taps[t]
	f := 1.0
	if tp.Capacity > 0 && tp.Load > tp.Capacity {
		f *= math.Pow(tp.Load/tp.Capacity, s.params.OverloadExponent)
	}
	if s.params.DeviationBase > 1 && tp.ExpLoad > 0 {
		dev := (tp.Load - tp.ExpLoad) / tp.ExpLoad
		f *= math.Pow(s.params.DeviationBase, dev*dev)
	}
	return f
}

// score recomputes tap t's energy from its attached houses and returns
// the change from the previous value. OldEnergy keeps that previous value
// so a rejected move can be undone without rescoring.
func (s *system) score(t int) float64 {
	tp := &s.taps[t]
	tp.OldEnergy = tp.Energy
	e := 0.0
	for _, h := range tp.houses {
		e += s.bondEnergy(t, h)
	}
	tp.Energy = e * s.loadPenalty(t)
	return tp.Energy - tp.OldEnergy
}

// restore undoes the last score call on tap t.
func (s *system) restore(t int) {
	s.taps[t].Energy = s.taps[t].OldEnergy
}

// settle centralises and scores every tap and returns the total energy.
func (s *system) settle() float64 {
	for i := range s.taps {
		s.centralise(i)
		s.score(i)
	}
	return s.totalEnergy()
}

// acceptProbability is the Metropolis factor exp(-ΔE/(kB·T)) for an
// unfavourable move. It is 1 for ΔE <= 0 and 0 when kB·T <= 0.
func acceptProbability(dE, kB, temp float64) float64 {
	if dE <= 0 {
		return 1
	}
	kt := kB * temp
	if kt <= 0 {
		return 0
	}
	return math.Exp(-dE / kt)
}
