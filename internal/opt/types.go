package opt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var (
	ErrNoPoints             = errors.New("opt: no demand points")
	ErrBadCapacity          = errors.New("opt: capacity must be positive")
	ErrBadDemand            = errors.New("opt: demand must be positive and finite")
	ErrInsufficientCapacity = errors.New("opt: facility count cannot carry total demand")
)

// Point is one raw demand point in planar coordinates. MaxDistance > 0
// overrides Options.MaxDistance for this point.
type Point struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Demand      float64 `json:"demand"`
	MaxDistance float64 `json:"maxDistance,omitempty"`
}

// ReseedPolicy decides the seed of each facility-count retry.
type ReseedPolicy int

const (
	// ReseedDerive runs attempt i with a seed mixed from the base seed and i.
	ReseedDerive ReseedPolicy = iota
	// ReseedSame reruns every attempt with the base seed.
	ReseedSame
)

func (p ReseedPolicy) seedFor(base uint64, attempt int) uint64 {
	if p == ReseedSame || attempt == 0 {
		return base
	}
	return DeriveSeed(base, uint64(attempt))
}

// Options configures one Optimize call. Zero values select defaults.
type Options struct {
	FacilityCount     int
	Steps             int
	ScaleCount        int
	DisableMultiscale bool
	MaxDistance       float64
	BufferSize        int
	OverloadThreshold float64
	TunnelProbability float64
	TempFloor         float64
	CalibrationRuns   int
	SafetyFactor      float64
	DisableRelaxation bool
	DisableRetry      bool
	MaxRetries        int
	StrictCapacity    bool
	Seed              uint64
	Reseed            ReseedPolicy
	Debug             bool
	Energy            EnergyParams

	Logger   *slog.Logger
	Progress func(Progress)
}

const (
	defaultSteps             = 100
	defaultOverloadThreshold = 1.2
	defaultTunnelProbability = 0.1
	defaultTempFloor         = 0.01
	defaultCalibrationRuns   = 100
	bufferMultiplier         = 5
)

func (o Options) withDefaults() Options {
	if o.Steps <= 0 {
		o.Steps = defaultSteps
	}
	if o.OverloadThreshold <= 0 {
		o.OverloadThreshold = defaultOverloadThreshold
	}
	if o.TunnelProbability <= 0 {
		o.TunnelProbability = defaultTunnelProbability
	}
	if o.TempFloor <= 0 || o.TempFloor >= 1 {
		o.TempFloor = defaultTempFloor
	}
	if o.CalibrationRuns <= 0 {
		o.CalibrationRuns = defaultCalibrationRuns
	}
	if o.SafetyFactor <= 0 {
		o.SafetyFactor = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o.Energy = o.Energy.withDefaults()
	return o
}

// Progress is reported once per sweep when Options.Progress is set.
type Progress struct {
	Attempt     int     `json:"attempt"`
	Facilities  int     `json:"facilities"`
	Scale       int     `json:"scale"`
	Sweep       int     `json:"sweep"`
	Quench      bool    `json:"quench"`
	Temperature float64 `json:"temperature"`
	Energy      float64 `json:"energy"`
	KB          float64 `json:"kB"`
}

// HouseResult is the final assignment of one input point.
type HouseResult struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Tap      int     `json:"tap"`
	Distance float64 `json:"distance"`
}

// TapResult is one placed facility. An Empty tap has no houses and no
// position; X and Y are zero.
type TapResult struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Index        int     `json:"index"`
	Load         float64 `json:"load"`
	LoadFraction float64 `json:"loadFraction"`
	Houses       int     `json:"houses"`
	Empty        bool    `json:"empty,omitempty"`
}

// TraceRecord is one sweep of the debug trace.
type TraceRecord struct {
	Temperature          float64
	Energy               float64
	Favourable           int
	UnfavourableAccepted int
	UnfavourableRejected int
}

// MarshalJSON encodes the record as [temperature, energy, fav, unfav_accept, unfav_reject].
func (r TraceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([5]float64{r.Temperature, r.Energy,
		float64(r.Favourable), float64(r.UnfavourableAccepted), float64(r.UnfavourableRejected)})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *TraceRecord) UnmarshalJSON(b []byte) error {
	var a [5]float64
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("trace record: %w", err)
	}
	*r = TraceRecord{Temperature: a[0], Energy: a[1],
		Favourable: int(a[2]), UnfavourableAccepted: int(a[3]), UnfavourableRejected: int(a[4])}
	return nil
}

// Metrics summarises the final attempt of a run.
type Metrics struct {
	Facilities    int           `json:"facilities"`
	ScalesPlanned int           `json:"scalesPlanned"`
	ScalesRun     int           `json:"scalesRun"`
	Stationary    bool          `json:"stationary"`
	KB            []float64     `json:"kB,omitempty"`
	Sweeps        int           `json:"sweeps"`
	Moves         int           `json:"moves"`
	Favourable    int           `json:"favourable"`
	AcceptedWorse int           `json:"acceptedWorse"`
	Rejected      int           `json:"rejected"`
	Tunnels       int           `json:"tunnels"`
	RelaxSwaps    int           `json:"relaxSwaps"`
	InitialEnergy float64       `json:"initialEnergy"`
	FinalEnergy   float64       `json:"finalEnergy"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Result is the outcome of Optimize.
type Result struct {
	Houses      []HouseResult `json:"houses"`
	Taps        []TapResult   `json:"taps"`
	MaxDistance float64       `json:"maxDistance"`
	Violations  int           `json:"violations"`
	Trace       []TraceRecord `json:"trace,omitempty"`
	Energy      float64       `json:"energy"`
	Metrics     Metrics       `json:"metrics"`
	Attempts    int           `json:"attempts"`
	Seed        uint64        `json:"seed"`
}
