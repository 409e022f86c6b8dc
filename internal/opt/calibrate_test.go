package opt

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func gridPoints(n int) []Point {
	pts := make([]Point, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, Point{X: float64(i), Y: float64(j), Demand: 1})
		}
	}
	return pts
}

func TestRandomiseAttachesAndSeedsBuffers(t *testing.T) {
	pts := gridPoints(4)
	s := newSystem(pts, 3, 10, 16.0/3, 0, 15, DefaultEnergyParams())
	s.randomise(rand.New(rand.NewSource(3)))

	count := 0
	for i := range s.taps {
		count += len(s.taps[i].Houses())
	}
	require.Equal(t, len(pts), count)
	require.InDelta(t, 16.0, s.totalLoad(), eps)
	for h := range s.houses {
		require.Equal(t, 1, s.houses[h].Buf.Len())
		v, _ := s.houses[h].Buf.Recent(0)
		require.Equal(t, s.houses[h].Tap, v)
	}
}

func TestMedianEnergy(t *testing.T) {
	s := newSystem(gridPoints(2), 5, 10, 1, 0, 5, DefaultEnergyParams())
	for i, e := range []float64{9, 1, 5, 3, 7} {
		s.taps[i].Energy = e
	}
	require.Equal(t, 5.0, s.medianEnergy())
}

func TestCalibratePositive(t *testing.T) {
	s := newSystem(gridPoints(5), 4, 10, 25.0/4, 0, 20, DefaultEnergyParams())
	kB := s.calibrate(rand.New(rand.NewSource(11)), 20)
	require.Greater(t, kB, 0.0)
	require.InDelta(t, 25.0, s.totalLoad(), eps)
}

func TestMedianEnergyIgnoresIdleTaps(t *testing.T) {
	s := newSystem(gridPoints(2), 6, 10, 1, 0, 5, DefaultEnergyParams())
	for i, e := range []float64{0, 0, 0, 2, 8, 1e-29} {
		s.taps[i].Energy = e
	}
	require.Equal(t, 2.0, s.medianEnergy())

	for i := range s.taps {
		s.taps[i].Energy = 0
	}
	require.Zero(t, s.medianEnergy())
}

func TestCalibrateManyTapsPositive(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(2)), 2, 3)
	s := newSystem(pts, 6, 100, 1, 0, 30, DefaultEnergyParams())
	require.Greater(t, s.calibrate(NewRand(4), 20), 0.0)
}

func TestOptimizeManyTapsStaysThermal(t *testing.T) {
	cases := []struct {
		name       string
		clusters   int
		per        int
		facilities int
	}{
		{"one tap per point", 2, 3, 6},
		{"two thirds taps", 6, 10, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pts := clusteredPoints(rand.New(rand.NewSource(7)), tc.clusters, tc.per)
			res, err := Optimize(context.Background(), pts, 100, Options{FacilityCount: tc.facilities, Steps: 30, Seed: 5})
			require.NoError(t, err)
			m := res.Metrics
			require.NotEmpty(t, m.KB)
			require.Greater(t, m.KB[0], 0.0)
			for i := 1; i < len(m.KB); i++ {
				require.GreaterOrEqual(t, m.KB[i], m.KB[i-1]*minKBRatio)
			}
			require.Positive(t, m.AcceptedWorse)
		})
	}
}

func TestRescale(t *testing.T) {
	pts := clusteredPoints(rand.New(rand.NewSource(1)), 1, 3)
	a, m := newTestAnnealer(t, pts, 3, 100, Options{})
	set := func(es ...float64) {
		for i, e := range es {
			a.taps[i].Energy = e
		}
	}

	set(3, 5, 7)
	next, ok := a.rescale(10, 0)
	require.True(t, ok)
	require.Equal(t, 5.0, next)

	_, ok = a.rescale(4, 0)
	require.False(t, ok)
	require.True(t, m.Stationary)

	m.Stationary = false
	set(1e-29, 2e-29, 0)
	_, ok = a.rescale(15, 0)
	require.False(t, ok)
	require.False(t, m.Stationary)
}
