// Package config loads service and CLI settings from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taptimise/internal/opt"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the root document.
type Config struct {
	Optimizer Optimizer `yaml:"optimizer"`
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	Webhooks  Webhooks  `yaml:"webhooks"`
	Auth      Auth      `yaml:"auth"`
	Log       Log       `yaml:"log"`
}

// Optimizer holds engine defaults. Request fields override them per run.
type Optimizer struct {
	Steps             int              `yaml:"steps" json:"steps"`
	ScaleCount        int              `yaml:"scaleCount" json:"scaleCount,omitempty"`
	DisableMultiscale bool             `yaml:"disableMultiscale" json:"disableMultiscale,omitempty"`
	MaxDistance       float64          `yaml:"maxDistance" json:"maxDistance,omitempty"`
	BufferSize        int              `yaml:"bufferSize" json:"bufferSize,omitempty"`
	OverloadThreshold float64          `yaml:"overloadThreshold" json:"overloadThreshold"`
	TunnelProbability float64          `yaml:"tunnelProbability" json:"tunnelProbability"`
	TempFloor         float64          `yaml:"tempFloor" json:"tempFloor"`
	CalibrationRuns   int              `yaml:"calibrationRuns" json:"calibrationRuns"`
	SafetyFactor      float64          `yaml:"safetyFactor" json:"safetyFactor"`
	DisableRelaxation bool             `yaml:"disableRelaxation" json:"disableRelaxation,omitempty"`
	DisableRetry      bool             `yaml:"disableRetry" json:"disableRetry,omitempty"`
	MaxRetries        int              `yaml:"maxRetries" json:"maxRetries,omitempty"`
	StrictCapacity    bool             `yaml:"strictCapacity" json:"strictCapacity,omitempty"`
	Reseed            string           `yaml:"reseed" json:"reseed"` // derive | same
	Energy            opt.EnergyParams `yaml:"energy" json:"energy"`
	Timeout           time.Duration    `yaml:"timeout" json:"timeout"`
}

type Server struct {
	Port      string  `yaml:"port"`
	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`
	MaxPoints int     `yaml:"maxPoints"`
	Workers   int     `yaml:"workers"`
	RedisURL  string  `yaml:"redisUrl"`
}

type Store struct {
	DatabaseURL string `yaml:"databaseUrl"`
}

type Webhooks struct {
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Auth guards the admin and debug endpoints. Mode is off, hmac or jwks.
type Auth struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmacSecret"`
	JWKSURL    string `yaml:"jwksUrl"`
	RoleClaim  string `yaml:"roleClaim"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a fully populated configuration.
func Default() Config {
	var c Config
	ApplyDefaults(&c)
	return c
}

// ApplyDefaults fills zero fields of c in place.
func ApplyDefaults(c *Config) {
	o := &c.Optimizer
	if o.Steps == 0 {
		o.Steps = 100
	}
	if o.OverloadThreshold == 0 {
		o.OverloadThreshold = 1.2
	}
	if o.TunnelProbability == 0 {
		o.TunnelProbability = 0.1
	}
	if o.TempFloor == 0 {
		o.TempFloor = 0.01
	}
	if o.CalibrationRuns == 0 {
		o.CalibrationRuns = 100
	}
	if o.SafetyFactor == 0 {
		o.SafetyFactor = 1
	}
	if o.Reseed == "" {
		o.Reseed = "derive"
	}
	if o.Energy == (opt.EnergyParams{}) {
		o.Energy = opt.DefaultEnergyParams()
	}
	if o.Timeout == 0 {
		o.Timeout = 5 * time.Minute
	}

	s := &c.Server
	if s.Port == "" {
		s.Port = "8080"
	}
	if s.RateRPS == 0 {
		s.RateRPS = 5
	}
	if s.RateBurst == 0 {
		s.RateBurst = 10
	}
	if s.MaxPoints == 0 {
		s.MaxPoints = 20000
	}
	if s.Workers == 0 {
		s.Workers = 2
	}

	if c.Webhooks.MaxAttempts == 0 {
		c.Webhooks.MaxAttempts = 5
	}
	if c.Webhooks.Timeout == 0 {
		c.Webhooks.Timeout = 10 * time.Second
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "off"
	}
	if c.Auth.RoleClaim == "" {
		c.Auth.RoleClaim = "role"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	o := c.Optimizer
	switch {
	case o.Steps < 1:
		return fmt.Errorf("%w: optimizer.steps must be >= 1", ErrInvalid)
	case o.TempFloor <= 0 || o.TempFloor >= 1:
		return fmt.Errorf("%w: optimizer.tempFloor must be in (0,1)", ErrInvalid)
	case o.TunnelProbability < 0 || o.TunnelProbability > 1:
		return fmt.Errorf("%w: optimizer.tunnelProbability must be in [0,1]", ErrInvalid)
	case o.OverloadThreshold <= 0:
		return fmt.Errorf("%w: optimizer.overloadThreshold must be positive", ErrInvalid)
	case o.SafetyFactor <= 0:
		return fmt.Errorf("%w: optimizer.safetyFactor must be positive", ErrInvalid)
	case o.MaxDistance < 0:
		return fmt.Errorf("%w: optimizer.maxDistance must be >= 0", ErrInvalid)
	case o.Reseed != "derive" && o.Reseed != "same":
		return fmt.Errorf("%w: optimizer.reseed must be derive or same, got %q", ErrInvalid, o.Reseed)
	case c.Server.RateRPS < 0 || c.Server.RateBurst < 0:
		return fmt.Errorf("%w: server rate limits must be >= 0", ErrInvalid)
	case c.Server.Workers < 1:
		return fmt.Errorf("%w: server.workers must be >= 1", ErrInvalid)
	case c.Auth.Mode != "off" && c.Auth.Mode != "hmac" && c.Auth.Mode != "jwks":
		return fmt.Errorf("%w: auth.mode must be off, hmac or jwks, got %q", ErrInvalid, c.Auth.Mode)
	}
	return nil
}

// Load reads path, rejects unknown keys, applies defaults and validates.
func Load(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	ApplyDefaults(&c)
	return c, c.Validate()
}

// FromEnv overlays environment variables onto c. Malformed numbers are
// reported rather than ignored.
func FromEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("REDIS_URL", &c.Server.RedisURL)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("WEBHOOK_SECRET", &c.Webhooks.Secret)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RATE_RPS: %v", ErrInvalid, err)
		}
		c.Server.RateRPS = f
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_BURST", &c.Server.RateBurst},
		{"WORKERS", &c.Server.Workers},
		{"WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, e.key, err)
		}
		*e.dst = n
	}
	return nil
}

// Options converts the optimizer section into engine options. Logger,
// Progress, Seed and FacilityCount are left for the caller.
func (o Optimizer) Options() opt.Options {
	reseed := opt.ReseedDerive
	if o.Reseed == "same" {
		reseed = opt.ReseedSame
	}
	return opt.Options{
		Steps:             o.Steps,
		ScaleCount:        o.ScaleCount,
		DisableMultiscale: o.DisableMultiscale,
		MaxDistance:       o.MaxDistance,
		BufferSize:        o.BufferSize,
		OverloadThreshold: o.OverloadThreshold,
		TunnelProbability: o.TunnelProbability,
		TempFloor:         o.TempFloor,
		CalibrationRuns:   o.CalibrationRuns,
		SafetyFactor:      o.SafetyFactor,
		DisableRelaxation: o.DisableRelaxation,
		DisableRetry:      o.DisableRetry,
		MaxRetries:        o.MaxRetries,
		StrictCapacity:    o.StrictCapacity,
		Reseed:            reseed,
		Energy:            o.Energy,
	}
}
