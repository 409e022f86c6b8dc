package opt

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func clusteredPoints(rng *rand.Rand, clusters, per int) []Point {
	pts := make([]Point, 0, clusters*per)
	for c := 0; c < clusters; c++ {
		cx, cy := float64(c%3)*40, float64(c/3)*40
		for i := 0; i < per; i++ {
			pts = append(pts, Point{
				X:      cx + rng.NormFloat64()*3,
				Y:      cy + rng.NormFloat64()*3,
				Demand: 1 + rng.Float64(),
			})
		}
	}
	return pts
}

func newTestAnnealer(t *testing.T, pts []Point, taps int, capacity float64, opts Options) (*annealer, *Metrics) {
	t.Helper()
	opts = opts.withDefaults()
	total := 0.0
	for _, p := range pts {
		total += p.Demand
	}
	s := newSystem(pts, taps, capacity, total/float64(taps), opts.MaxDistance, taps*bufferMultiplier, opts.Energy)
	m := &Metrics{Facilities: taps}
	rng := NewRand(opts.Seed)
	return newAnnealer(s, rng, opts, 0, m), m
}

func TestAnnealConservesDemandEveryStep(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(5)), 4, 12)
	total := 0.0
	for _, p := range pts {
		total += p.Demand
	}
	a, m := newTestAnnealer(t, pts, 4, total/3, Options{Steps: 20, Seed: 9})
	kB := a.calibrate(a.rng, 10)

	steps := 0
	a.afterStep = func() {
		steps++
		load, members := 0.0, 0
		for i := range a.taps {
			load += a.taps[i].Load
			members += len(a.taps[i].houses)
		}
		if math.Abs(load-total) > 1e-6 || members != len(pts) {
			t.Fatalf("step %d: load %v members %d, want %v and %d", steps, load, members, total, len(pts))
		}
	}
	_, err := a.run(context.Background(), kB, 2)
	require.NoError(t, err)
	require.Equal(t, m.Sweeps*len(pts), steps)
	require.Equal(t, m.Moves, m.Favourable+m.AcceptedWorse+m.Rejected+m.Tunnels)
}

func TestAnnealConservesAcrossTunnels(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(5)), 4, 12)
	total := 0.0
	for _, p := range pts {
		total += p.Demand
	}
	// every tap sits well above the overload threshold
	a, m := newTestAnnealer(t, pts, 4, total/6, Options{Steps: 20, Seed: 9, TunnelProbability: 1})
	kB := a.calibrate(a.rng, 10)
	require.Positive(t, kB)

	steps := 0
	a.afterStep = func() {
		steps++
		load, members := 0.0, 0
		for i := range a.taps {
			load += a.taps[i].Load
			members += len(a.taps[i].houses)
		}
		if math.Abs(load-total) > 1e-6 || members != len(pts) {
			t.Fatalf("step %d: load %v members %d, want %v and %d", steps, load, members, total, len(pts))
		}
		if want := a.totalEnergy(); math.Abs(a.energy-want) > 1e-6*(1+math.Abs(want)) {
			t.Fatalf("step %d: running energy %v, taps sum to %v", steps, a.energy, want)
		}
	}
	_, err := a.run(context.Background(), kB, 2)
	require.NoError(t, err)
	require.Positive(t, m.Tunnels)
	require.Equal(t, m.Moves, m.Favourable+m.AcceptedWorse+m.Rejected+m.Tunnels)
}

func TestAnnealKeepsCentroidsAndCachedEnergies(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(8)), 3, 10)
	a, _ := newTestAnnealer(t, pts, 3, 20, Options{Steps: 15, Seed: 4})
	kB := a.calibrate(a.rng, 10)
	_, err := a.run(context.Background(), kB, 2)
	require.NoError(t, err)

	for i := range a.taps {
		tp := a.taps[i]
		if tp.Load == 0 {
			continue
		}
		sx, sy := 0.0, 0.0
		for _, h := range tp.houses {
			sx += a.houses[h].X * a.houses[h].Demand
			sy += a.houses[h].Y * a.houses[h].Demand
		}
		require.InDelta(t, sx/tp.Load, tp.X, 1e-6)
		require.InDelta(t, sy/tp.Load, tp.Y, 1e-6)

		cached := tp.Energy
		a.score(i)
		require.InDelta(t, a.taps[i].Energy, cached, 1e-9*(1+math.Abs(cached)))
	}
}

func TestAnnealTraceAndProgress(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(2)), 2, 8)
	var calls []Progress
	a, m := newTestAnnealer(t, pts, 2, 20, Options{
		Steps:    10,
		Seed:     3,
		Debug:    true,
		Progress: func(p Progress) { calls = append(calls, p) },
	})
	kB := a.calibrate(a.rng, 5)
	trace, err := a.run(context.Background(), kB, 2)
	require.NoError(t, err)

	require.Len(t, trace, m.Sweeps)
	require.Len(t, calls, m.Sweeps)
	require.Equal(t, (m.ScalesRun+1)*10, m.Sweeps)
	require.True(t, calls[len(calls)-1].Quench)
	require.False(t, calls[0].Quench)

	require.InDelta(t, 1.0, trace[0].Temperature, eps)
	require.InDelta(t, math.Pow(0.01, 0.9), trace[9].Temperature, 1e-12)
	require.InDelta(t, 1.0, trace[10].Temperature, eps)
	for _, r := range trace {
		require.LessOrEqual(t, r.Favourable+r.UnfavourableAccepted+r.UnfavourableRejected, len(pts))
	}
}

func TestQuenchNeverAcceptsWorse(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(12)), 3, 6)
	a, m := newTestAnnealer(t, pts, 3, 20, Options{Steps: 10, Seed: 6})
	a.randomise(a.rng)
	a.energy = a.settle()
	before := a.energy
	_, err := a.cool(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Zero(t, m.AcceptedWorse)
	require.Zero(t, m.Tunnels)
	require.LessOrEqual(t, a.totalEnergy(), before+1e-9)
}

func TestAnnealSingleTapTrivialTrace(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(1)), 1, 5)
	a, m := newTestAnnealer(t, pts, 1, 100, Options{Steps: 10})
	a.randomise(a.rng)
	trace, err := a.run(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, trace, 1)
	require.Zero(t, m.Sweeps)
	require.InDelta(t, a.totalEnergy(), trace[0].Energy, eps)
}

func TestAnnealHonoursCancellation(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(1)), 2, 5)
	a, m := newTestAnnealer(t, pts, 2, 100, Options{Steps: 10})
	kB := a.calibrate(a.rng, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.run(ctx, kB, 2)
	require.True(t, errors.Is(err, context.Canceled))
	require.Zero(t, m.Sweeps)
}

func TestPickSourceSkipsEmptyTaps(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(1)), 1, 4)
	a, _ := newTestAnnealer(t, pts, 3, 100, Options{})
	for h := range a.houses {
		a.attach(h, 1)
		a.houses[h].Buf.Insert(1)
	}
	a.settle()
	a.maxE = a.maxEnergy()
	for i := 0; i < 50; i++ {
		require.Equal(t, 1, a.pickSource())
		require.NotEqual(t, 1, a.proposeTarget(0, 1))
	}
}
