package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taptimise/internal/opt"
)

func TestApplyOverlaysSetFields(t *testing.T) {
	base := opt.Options{Steps: 100, SafetyFactor: 1.1, DisableRelaxation: true, Seed: 9}
	r := OptimizeRequest{Steps: 20, Facilities: 3, DisableRetry: true}
	o := r.Apply(base)
	require.Equal(t, 20, o.Steps)
	require.Equal(t, 3, o.FacilityCount)
	require.Equal(t, 1.1, o.SafetyFactor)
	require.True(t, o.DisableRelaxation)
	require.True(t, o.DisableRetry)
	require.Zero(t, o.Seed)
	require.Equal(t, 100, base.Steps)
}

func TestSummary(t *testing.T) {
	now := time.Now()
	run := Run{ID: "r1", Status: StatusDone, Request: OptimizeRequest{Points: make([]opt.Point, 4)}, CreatedAt: now, UpdatedAt: now}
	s := run.Summary()
	require.Equal(t, 4, s.Points)
	require.Zero(t, s.Facilities)

	run.Result = &opt.Result{Taps: make([]opt.TapResult, 2), Energy: 3.5, MaxDistance: 7, Violations: 1}
	s = run.Summary()
	require.Equal(t, 2, s.Facilities)
	require.Equal(t, 3.5, s.Energy)
	require.Equal(t, 7.0, s.MaxDistance)
	require.Equal(t, 1, s.Violations)
	require.Equal(t, "r1", run.Out().ID)
}

func TestOriginPlane(t *testing.T) {
	var o *Origin
	require.Nil(t, o.Plane())
	p := (&Origin{Lat: 51.5, Lon: -0.1}).Plane()
	require.NotNil(t, p)
	require.InDelta(t, 51.5, p.Lat0, 1e-9)
}
