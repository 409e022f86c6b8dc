package api

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"taptimise/internal/config"
	"taptimise/internal/model"
	"taptimise/internal/opt"
)

func TestValidateOptimizeRequest(t *testing.T) {
	ok := func() model.OptimizeRequest {
		return model.OptimizeRequest{Points: []opt.Point{{X: 1, Y: 2, Demand: 1}, {X: 3, Y: 4, Demand: 2}}, Capacity: 3}
	}
	cases := []struct {
		name   string
		mutate func(*model.OptimizeRequest)
		max    int
		want   string
	}{
		{"valid", func(*model.OptimizeRequest) {}, 0, ""},
		{"too many", func(*model.OptimizeRequest) {}, 1, "too many points"},
		{"inf capacity", func(r *model.OptimizeRequest) { r.Capacity = math.Inf(1) }, 0, "capacity"},
		{"facilities over points", func(r *model.OptimizeRequest) { r.Facilities = 3 }, 0, "facilities"},
		{"negative distance", func(r *model.OptimizeRequest) { r.MaxDistance = -1 }, 0, "maxDistance"},
		{"negative steps", func(r *model.OptimizeRequest) { r.Steps = -1 }, 0, "steps"},
		{"nan coordinate", func(r *model.OptimizeRequest) { r.Points[1].X = math.NaN() }, 0, "point 1"},
		{"geodetic range", func(r *model.OptimizeRequest) { r.Geodetic = true; r.Points[0].Y = 95 }, 0, "out of range"},
		{"relative callback", func(r *model.OptimizeRequest) { r.Async = true; r.CallbackURL = "/hook" }, 0, "callbackUrl"},
		{"async callback", func(r *model.OptimizeRequest) { r.Async = true; r.CallbackURL = "https://example.com/hook" }, 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := ok()
			tc.mutate(&req)
			err := validateOptimizeRequest(&req, tc.max)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestFingerprint(t *testing.T) {
	defaults := config.Default().Optimizer
	req := model.OptimizeRequest{Points: []opt.Point{{X: 1, Y: 2, Demand: 1}}, Capacity: 3, Seed: 9}
	fp := fingerprint(req, defaults)
	require.Len(t, fp, 32)

	withCallback := req
	withCallback.Async = true
	withCallback.CallbackURL = "https://example.com"
	require.Equal(t, fp, fingerprint(withCallback, defaults))

	other := req
	other.Capacity = 4
	require.NotEqual(t, fp, fingerprint(other, defaults))

	defaults.Steps++
	require.NotEqual(t, fp, fingerprint(req, defaults))

	req.Seed = 0
	require.Empty(t, fingerprint(req, defaults))
}
