package opt

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
)

// annealer drives the multiscale cooling schedule over a system.
type annealer struct {
	*system
	rng *rand.Rand
	log *slog.Logger

	steps      int
	tempFloor  float64
	overload   float64
	tunnelProb float64
	debug      bool

	attempt  int
	progress func(Progress)

	energy float64
	maxE   float64
	m      *Metrics

	afterStep func() // test hook, run after every resolved proposal
}

func newAnnealer(s *system, rng *rand.Rand, opts Options, attempt int, m *Metrics) *annealer {
	return &annealer{
		system:     s,
		rng:        rng,
		log:        opts.Logger,
		steps:      opts.Steps,
		tempFloor:  opts.TempFloor,
		overload:   opts.OverloadThreshold,
		tunnelProb: opts.TunnelProbability,
		debug:      opts.Debug,
		attempt:    attempt,
		progress:   opts.Progress,
		m:          m,
	}
}

type sweepStats struct {
	fav, acc, rej, tunnels int
}

// run anneals through up to scales energy scales starting at kB, then
// finishes with a zero-temperature pass. Between scales kB is reset to the
// current median tap energy; a median that did not drop, or that collapsed
// towards zero, ends the schedule early. A single-tap system has nothing to anneal and returns a one-record
// trace.
func (a *annealer) run(ctx context.Context, kB float64, scales int) ([]TraceRecord, error) {
	a.energy = a.settle()
	a.m.InitialEnergy = a.energy
	if len(a.taps) < 2 {
		a.m.FinalEnergy = a.energy
		return []TraceRecord{{Temperature: 1, Energy: a.energy}}, nil
	}

	var trace []TraceRecord
	if kB <= 0 && scales > 0 {
		a.log.Warn("anneal_no_energy_scale", "facilities", len(a.taps))
		scales = 0
	}
	for sc := 0; sc < scales; sc++ {
		a.m.KB = append(a.m.KB, kB)
		tr, err := a.cool(ctx, kB, sc)
		trace = append(trace, tr...)
		if err != nil {
			return trace, err
		}
		a.m.ScalesRun++
		if sc == scales-1 {
			break
		}
		next, ok := a.rescale(kB, sc)
		if !ok {
			break
		}
		kB = next
	}

	tr, err := a.cool(ctx, 0, a.m.ScalesRun)
	trace = append(trace, tr...)
	if err != nil {
		return trace, err
	}
	// resync the running sum with the per-tap cache
	a.energy = a.totalEnergy()
	a.m.FinalEnergy = a.energy
	return trace, nil
}

// minKBRatio bounds how far kB may fall between consecutive scales.
const minKBRatio = 1e-6

// rescale returns the next scale's kB, or false when the schedule should
// stop: the median did not drop, or it fell below minKBRatio·kB.
func (a *annealer) rescale(kB float64, scale int) (float64, bool) {
	next := a.medianEnergy()
	switch {
	case next >= kB:
		a.m.Stationary = true
		a.log.Debug("anneal_stationary", "scale", scale, "kB", kB, "median", next)
		return kB, false
	case next < kB*minKBRatio:
		a.log.Debug("anneal_kb_collapsed", "scale", scale, "kB", kB, "median", next)
		return kB, false
	}
	return next, true
}

// cool performs Steps sweeps of n proposals each. Temperature decays
// geometrically from 1 to tempFloor. kB <= 0 is a quench: only improving
// moves are kept and tunnelling is off.
func (a *annealer) cool(ctx context.Context, kB float64, scale int) ([]TraceRecord, error) {
	base := math.Pow(a.tempFloor, 1/float64(a.steps))
	temp := 1.0
	n := len(a.houses)
	var trace []TraceRecord
	for sweep := 0; sweep < a.steps; sweep++ {
		if err := ctx.Err(); err != nil {
			return trace, err
		}
		a.maxE = a.maxEnergy()
		var st sweepStats
		for i := 0; i < n; i++ {
			a.step(kB, temp, sweep, &st)
			if a.afterStep != nil {
				a.afterStep()
			}
		}
		a.m.Sweeps++
		a.m.Moves += n
		a.m.Favourable += st.fav
		a.m.AcceptedWorse += st.acc
		a.m.Rejected += st.rej
		a.m.Tunnels += st.tunnels

		if a.debug {
			trace = append(trace, TraceRecord{
				Temperature:          temp,
				Energy:               a.energy,
				Favourable:           st.fav,
				UnfavourableAccepted: st.acc,
				UnfavourableRejected: st.rej,
			})
		}
		if a.progress != nil {
			a.progress(Progress{
				Attempt:     a.attempt,
				Facilities:  len(a.taps),
				Scale:       scale,
				Sweep:       sweep,
				Quench:      kB <= 0,
				Temperature: temp,
				Energy:      a.energy,
				KB:          kB,
			})
		}
		temp *= base
	}
	return trace, nil
}

// step proposes moving one house to another tap.
func (a *annealer) step(kB, temp float64, sweep int, st *sweepStats) {
	src := a.pickSource()
	tp := &a.taps[src]
	h := tp.houses[a.rng.Intn(len(tp.houses))]
	dst := a.proposeTarget(h, src)

	if kB > 0 && tp.Capacity > 0 && tp.Load/tp.Capacity > a.overload {
		p := a.tunnelProb * (1 - float64(sweep)/float64(a.steps))
		if a.rng.Float64() < p {
			a.energy += a.tunnel(h, src, a.rng)
			st.tunnels++
			return
		}
	}

	a.move(h, dst)
	a.centralise(src)
	a.centralise(dst)
	dE := a.score(src) + a.score(dst)

	switch {
	case dE < 0:
		st.fav++
		a.energy += dE
		a.houses[h].Buf.Insert(dst)
	case kB > 0 && a.rng.Float64() < acceptProbability(dE, kB, temp):
		st.acc++
		a.energy += dE
		a.houses[h].Buf.Insert(dst)
	default:
		st.rej++
		a.move(h, src)
		a.restore(src)
		a.restore(dst)
		a.centralise(src)
		a.centralise(dst)
		a.houses[h].Buf.Insert(src)
	}
}

// pickSource draws a non-empty tap with probability proportional to its
// energy by rejection sampling against maxE. After 4·taps failed draws it
// falls back to a uniform non-empty tap.
func (a *annealer) pickSource() int {
	nt := len(a.taps)
	for try := 0; try < 4*nt; try++ {
		t := a.rng.Intn(nt)
		if len(a.taps[t].houses) == 0 {
			continue
		}
		if a.maxE <= 0 || a.rng.Float64()*a.maxE < a.taps[t].Energy {
			return t
		}
	}
	for {
		t := a.rng.Intn(nt)
		if len(a.taps[t].houses) > 0 {
			return t
		}
	}
}

// proposeTarget samples a tap from h's locality buffer. When that yields
// the current tap it resamples, favouring low-energy taps, and after
// 4·taps failed draws picks any other tap uniformly.
func (a *annealer) proposeTarget(h, cur int) int {
	if t := a.houses[h].Buf.Rand(a.rng); t != cur {
		return t
	}
	nt := len(a.taps)
	for try := 0; try < 4*nt; try++ {
		t := a.rng.Intn(nt)
		if t == cur {
			continue
		}
		if a.maxE <= 0 || a.rng.Float64() < 1-a.taps[t].Energy/a.maxE {
			return t
		}
	}
	t := a.rng.Intn(nt - 1)
	if t >= cur {
		t++
	}
	return t
}
