package opt

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Optimize places facilities of the given capacity over points and assigns
// every point to one of them. The facility count is Options.FacilityCount,
// or ceil(total demand · SafetyFactor / capacity) when unset. If any point
// ends beyond its walking cap (its own MaxDistance, else
// Options.MaxDistance) the run is repeated with one more facility until it
// fits, retries are disabled, MaxRetries is reached, or there are as many
// facilities as points.
func Optimize(ctx context.Context, points []Point, capacity float64, opts Options) (*Result, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	if !(capacity > 0) || math.IsInf(capacity, 1) {
		return nil, fmt.Errorf("%w: %v", ErrBadCapacity, capacity)
	}
	total := 0.0
	for i, p := range points {
		if !(p.Demand > 0) || math.IsInf(p.Demand, 1) {
			return nil, fmt.Errorf("%w: point %d has demand %v", ErrBadDemand, i, p.Demand)
		}
		total += p.Demand
	}
	opts = opts.withDefaults()
	log := opts.Logger

	numTaps := opts.FacilityCount
	if numTaps <= 0 {
		numTaps = int(math.Ceil(total * opts.SafetyFactor / capacity))
	}
	if numTaps < 1 {
		numTaps = 1
	}
	seed := ResolveSeed(opts.Seed)
	start := time.Now()

	var res *Result
	for attempt := 0; ; attempt++ {
		if float64(numTaps)*capacity < total {
			if opts.StrictCapacity {
				return nil, fmt.Errorf("%w: %d × %v < %v", ErrInsufficientCapacity, numTaps, capacity, total)
			}
			log.Warn("insufficient_capacity", "facilities", numTaps, "capacity", capacity, "demand", total)
		}
		r, err := optimiseOnce(ctx, points, capacity, numTaps, opts.Reseed.seedFor(seed, attempt), attempt, opts)
		if err != nil {
			return nil, err
		}
		res = r
		res.Attempts = attempt + 1
		res.Seed = seed

		if res.Violations == 0 || opts.DisableRetry {
			break
		}
		if opts.MaxRetries > 0 && attempt >= opts.MaxRetries {
			log.Warn("facility_retries_exhausted", "attempts", attempt+1, "max_distance", res.MaxDistance)
			break
		}
		if numTaps >= len(points) {
			log.Warn("facility_count_at_points", "facilities", numTaps, "max_distance", res.MaxDistance)
			break
		}
		numTaps++
		log.Info("facility_retry", "facilities", numTaps, "violations", res.Violations, "max_distance", res.MaxDistance)
	}
	res.Metrics.Elapsed = time.Since(start)
	return res, nil
}

func optimiseOnce(ctx context.Context, points []Point, capacity float64, numTaps int, seed uint64, attempt int, opts Options) (*Result, error) {
	rng := NewRand(seed)
	total := 0.0
	for _, p := range points {
		total += p.Demand
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = numTaps * bufferMultiplier
	}
	s := newSystem(points, numTaps, capacity, total/float64(numTaps), opts.MaxDistance, bufSize, opts.Energy)
	m := Metrics{Facilities: numTaps}
	a := newAnnealer(s, rng, opts, attempt, &m)

	kB, scales := 0.0, 0
	if numTaps > 1 {
		kB = s.calibrate(rng, opts.CalibrationRuns)
		scales = opts.ScaleCount
		if scales <= 0 {
			if opts.DisableMultiscale {
				scales = minScales
			} else {
				scales = LengthScales(points, opts.Logger)
			}
		}
	} else {
		s.randomise(rng)
	}
	m.ScalesPlanned = scales

	trace, err := a.run(ctx, kB, scales)
	if err != nil {
		return nil, err
	}
	if !opts.DisableRelaxation {
		m.RelaxSwaps = s.relax(rng)
		m.FinalEnergy = s.totalEnergy()
	}
	if !opts.Debug && numTaps > 1 {
		trace = nil
	}
	return s.result(trace, m), nil
}

func (s *system) result(trace []TraceRecord, m Metrics) *Result {
	res := &Result{
		Houses:  make([]HouseResult, len(s.houses)),
		Taps:    make([]TapResult, len(s.taps)),
		Trace:   trace,
		Energy:  s.totalEnergy(),
		Metrics: m,
	}
	for i := range s.houses {
		h := &s.houses[i]
		d := s.dist(i, h.Tap)
		res.Houses[i] = HouseResult{X: h.X, Y: h.Y, Tap: h.Tap, Distance: d}
		if d > res.MaxDistance {
			res.MaxDistance = d
		}
		if h.MaxSqDist > 0 && s.sqDist(i, h.Tap) > h.MaxSqDist {
			res.Violations++
		}
	}
	for i := range s.taps {
		t := &s.taps[i]
		tr := TapResult{
			Index:        i,
			Load:         t.Load,
			LoadFraction: t.Load / t.Capacity,
			Houses:       len(t.houses),
			Empty:        len(t.houses) == 0,
		}
		if !tr.Empty {
			tr.X, tr.Y = t.X, t.Y
		}
		res.Taps[i] = tr
	}
	return res
}
