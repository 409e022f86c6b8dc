package opt

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimizeSingleFacilityMidpoint(t *testing.T) {
	pts := []Point{{X: 0, Y: 0, Demand: 3}, {X: 10, Y: 0, Demand: 3}}
	res, err := Optimize(context.Background(), pts, 6, Options{Seed: 1})
	require.NoError(t, err)
	require.Len(t, res.Taps, 1)
	require.InDelta(t, 5.0, res.Taps[0].X, eps)
	require.InDelta(t, 0.0, res.Taps[0].Y, eps)
	require.Equal(t, 0, res.Houses[0].Tap)
	require.Equal(t, 0, res.Houses[1].Tap)
	require.InDelta(t, 5.0, res.MaxDistance, eps)
	require.InDelta(t, 1.0, res.Taps[0].LoadFraction, eps)
}

func TestOptimizeDegenerateSkipsSweeps(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := make([]Point, 40)
	total := 0.0
	for i := range pts {
		pts[i] = Point{X: rng.Float64() * 50, Y: rng.Float64() * 50, Demand: 1}
		total += 1
	}
	res, err := Optimize(context.Background(), pts, total, Options{Seed: 2})
	require.NoError(t, err)
	require.Len(t, res.Taps, 1)
	require.Len(t, res.Trace, 1)
	require.Zero(t, res.Metrics.Sweeps)
	require.Equal(t, 40, res.Taps[0].Houses)
	for _, h := range res.Houses {
		require.Equal(t, 0, h.Tap)
	}
}

func farPointFixture() []Point {
	pts := []Point{
		{X: 0, Y: 0, Demand: 1},
		{X: 2, Y: 1, Demand: 1},
		{X: -1, Y: 2, Demand: 1},
		{X: 1, Y: -2, Demand: 1},
		{X: -2, Y: -1, Demand: 1},
	}
	return append(pts, Point{X: 1000, Y: 0, Demand: 1})
}

func TestOptimizeRetriesUntilWithinCap(t *testing.T) {
	res, err := Optimize(context.Background(), farPointFixture(), 6, Options{
		MaxDistance: 50,
		Steps:       30,
		Seed:        7,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Attempts, 2)
	require.GreaterOrEqual(t, len(res.Taps), 2)
	require.LessOrEqual(t, res.MaxDistance, 50.0)
	require.Zero(t, res.Violations)
	require.Equal(t, len(res.Taps), res.Metrics.Facilities)
}

func TestOptimizeRetryDisabled(t *testing.T) {
	res, err := Optimize(context.Background(), farPointFixture(), 6, Options{
		MaxDistance:  50,
		DisableRetry: true,
		Seed:         7,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempts)
	require.Len(t, res.Taps, 1)
	require.Greater(t, res.MaxDistance, 50.0)
	require.Positive(t, res.Violations)
}

func TestOptimizeRetryBudget(t *testing.T) {
	// a per-point cap of zero-ish distance cannot be met with fewer taps than points
	pts := farPointFixture()
	for i := range pts {
		pts[i].MaxDistance = 1e-9
	}
	res, err := Optimize(context.Background(), pts, 6, Options{Steps: 5, MaxRetries: 2, Seed: 1, DisableRelaxation: true})
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
	require.Len(t, res.Taps, 3)
}

func TestOptimizeDeterministic(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(31)), 4, 8)
	opts := Options{Steps: 15, Seed: 99, CalibrationRuns: 10}
	a, err := Optimize(context.Background(), pts, 12, opts)
	require.NoError(t, err)
	b, err := Optimize(context.Background(), pts, 12, opts)
	require.NoError(t, err)
	require.Equal(t, a.Houses, b.Houses)
	require.Equal(t, a.Taps, b.Taps)
	require.Equal(t, a.Energy, b.Energy)
	require.Equal(t, uint64(99), a.Seed)
}

func TestOptimizeConservesDemand(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(4)), 5, 10)
	total := 0.0
	for _, p := range pts {
		total += p.Demand
	}
	res, err := Optimize(context.Background(), pts, total/4, Options{Steps: 20, Seed: 5, Debug: true})
	require.NoError(t, err)

	load, houses := 0.0, 0
	for _, tp := range res.Taps {
		load += tp.Load
		houses += tp.Houses
	}
	require.InDelta(t, total, load, 1e-6)
	require.Equal(t, len(pts), houses)
	for _, h := range res.Houses {
		require.GreaterOrEqual(t, h.Tap, 0)
		require.Less(t, h.Tap, len(res.Taps))
	}
	require.Len(t, res.Trace, res.Metrics.Sweeps)
	require.Len(t, res.Metrics.KB, res.Metrics.ScalesRun)
	require.LessOrEqual(t, res.Metrics.ScalesRun, res.Metrics.ScalesPlanned)
}

func TestOptimizeFacilityCountFromSafetyFactor(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(6)), 2, 10)
	for i := range pts {
		pts[i].Demand = 1
	}
	res, err := Optimize(context.Background(), pts, 10, Options{Steps: 5, SafetyFactor: 1.5, Seed: 3})
	require.NoError(t, err)
	require.Len(t, res.Taps, 3)

	res, err = Optimize(context.Background(), pts, 10, Options{Steps: 5, FacilityCount: 5, Seed: 3})
	require.NoError(t, err)
	require.Len(t, res.Taps, 5)
}

func TestOptimizeSeedZeroIsReported(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(6)), 1, 6)
	res, err := Optimize(context.Background(), pts, 3, Options{Steps: 3})
	require.NoError(t, err)
	require.NotZero(t, res.Seed)

	again, err := Optimize(context.Background(), pts, 3, Options{Steps: 3, Seed: res.Seed})
	require.NoError(t, err)
	require.Equal(t, res.Houses, again.Houses)
}

func TestOptimizeProgressOncePerSweep(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(8)), 2, 6)
	calls := 0
	res, err := Optimize(context.Background(), pts, 8, Options{
		Steps:    7,
		Seed:     1,
		Progress: func(Progress) { calls++ },
	})
	require.NoError(t, err)
	require.Equal(t, res.Metrics.Sweeps, calls)
	require.Nil(t, res.Trace)
}

func TestOptimizeValidation(t *testing.T) {
	ctx := context.Background()
	_, err := Optimize(ctx, nil, 1, Options{})
	require.ErrorIs(t, err, ErrNoPoints)

	_, err = Optimize(ctx, []Point{{Demand: 1}}, 0, Options{})
	require.ErrorIs(t, err, ErrBadCapacity)

	_, err = Optimize(ctx, []Point{{Demand: 1}, {Demand: -2}}, 5, Options{})
	require.ErrorIs(t, err, ErrBadDemand)

	_, err = Optimize(ctx, []Point{{Demand: 5}, {X: 1, Demand: 5}}, 4, Options{FacilityCount: 2, StrictCapacity: true})
	require.ErrorIs(t, err, ErrInsufficientCapacity)

	res, err := Optimize(ctx, []Point{{Demand: 5}, {X: 1, Demand: 5}}, 4, Options{FacilityCount: 2, Steps: 3, Seed: 1})
	require.NoError(t, err)
	require.Len(t, res.Taps, 2)
}

func TestOptimizeCancelled(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(8)), 2, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Optimize(ctx, pts, 4, Options{Seed: 1})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestReseedPolicy(t *testing.T) {
	require.Equal(t, uint64(5), ReseedDerive.seedFor(5, 0))
	require.NotEqual(t, uint64(5), ReseedDerive.seedFor(5, 1))
	require.NotEqual(t, ReseedDerive.seedFor(5, 1), ReseedDerive.seedFor(5, 2))
	require.Equal(t, uint64(5), ReseedSame.seedFor(5, 3))
}

func TestTraceRecordJSON(t *testing.T) {
	b, err := json.Marshal([]TraceRecord{{Temperature: 0.5, Energy: 12, Favourable: 3, UnfavourableAccepted: 1, UnfavourableRejected: 6}})
	require.NoError(t, err)
	require.JSONEq(t, `[[0.5,12,3,1,6]]`, string(b))

	var back []TraceRecord
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, 6, back[0].UnfavourableRejected)
}

func TestOptimizeMarksEmptyTaps(t *testing.T) {
	pts := []Point{{X: 0, Y: 0, Demand: 1}, {X: 30, Y: 0, Demand: 1}}
	res, err := Optimize(context.Background(), pts, 100, Options{FacilityCount: 4, Steps: 10, Seed: 3})
	require.NoError(t, err)
	require.Len(t, res.Taps, 4)

	empty := 0
	for _, tp := range res.Taps {
		if tp.Houses == 0 {
			empty++
			require.True(t, tp.Empty)
			require.Zero(t, tp.X)
			require.Zero(t, tp.Y)
			continue
		}
		require.False(t, tp.Empty)
	}
	require.GreaterOrEqual(t, empty, 2)
	for _, h := range res.Houses {
		tp := res.Taps[h.Tap]
		if tp.Houses != 1 {
			continue
		}
		require.InDelta(t, h.X, tp.X, 1e-9)
		require.InDelta(t, h.Y, tp.Y, 1e-9)
	}
}
