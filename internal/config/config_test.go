package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taptimise/internal/opt"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 100, c.Optimizer.Steps)
	require.Equal(t, 1.2, c.Optimizer.OverloadThreshold)
	require.Equal(t, 0.1, c.Optimizer.TunnelProbability)
	require.Equal(t, 0.01, c.Optimizer.TempFloor)
	require.Equal(t, 100, c.Optimizer.CalibrationRuns)
	require.Equal(t, "derive", c.Optimizer.Reseed)
	require.Equal(t, opt.DefaultEnergyParams(), c.Optimizer.Energy)
	require.Equal(t, 5*time.Minute, c.Optimizer.Timeout)
	require.Equal(t, "8080", c.Server.Port)
	require.Equal(t, 5, c.Webhooks.MaxAttempts)
	require.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("overrides and defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taptimise.yaml")
		doc := `
optimizer:
  steps: 40
  maxDistance: 150
  reseed: same
  energy:
    distanceExponent: 3
  timeout: 30s
server:
  port: "9090"
log:
  format: json
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
		c, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, 40, c.Optimizer.Steps)
		require.Equal(t, 150.0, c.Optimizer.MaxDistance)
		require.Equal(t, 30*time.Second, c.Optimizer.Timeout)
		require.Equal(t, 3.0, c.Optimizer.Energy.DistanceExponent)
		require.Equal(t, "9090", c.Server.Port)
		require.Equal(t, "json", c.Log.Format)
		require.Equal(t, "info", c.Log.Level)

		o := c.Optimizer.Options()
		require.Equal(t, opt.ReseedSame, o.Reseed)
		require.Equal(t, 40, o.Steps)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  stepz: 3\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("optimizer:\n  tempFloor: 2\n"), 0o600))
		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		c, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, Default(), c)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "9")
	c := Default()
	require.NoError(t, FromEnv(&c))
	require.Equal(t, "7000", c.Server.Port)
	require.Equal(t, "postgres://x", c.Store.DatabaseURL)
	require.Equal(t, 2.5, c.Server.RateRPS)
	require.Equal(t, 9, c.Webhooks.MaxAttempts)

	t.Setenv("RATE_BURST", "lots")
	require.ErrorIs(t, FromEnv(&c), ErrInvalid)
}

func TestValidateReseed(t *testing.T) {
	c := Default()
	c.Optimizer.Reseed = "random"
	require.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestAuthSection(t *testing.T) {
	c := Default()
	require.Equal(t, "off", c.Auth.Mode)
	require.Equal(t, "role", c.Auth.RoleClaim)

	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("AUTH_HMAC_SECRET", "k")
	require.NoError(t, FromEnv(&c))
	require.Equal(t, "hmac", c.Auth.Mode)
	require.Equal(t, "k", c.Auth.HMACSecret)
	require.NoError(t, c.Validate())

	c.Auth.Mode = "basic"
	require.ErrorIs(t, c.Validate(), ErrInvalid)
}
