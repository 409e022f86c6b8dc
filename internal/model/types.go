// Package model holds the request and response types shared by the HTTP
// service, the run store and the serverless entry point.
package model

import (
	"time"

	"taptimise/internal/geo"
	"taptimise/internal/opt"
)

// Run states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// OptimizeRequest is the body of POST /v1/optimize. Zero fields fall back
// to the server's optimizer defaults.
type OptimizeRequest struct {
	Points   []opt.Point `json:"points"`
	Capacity float64     `json:"capacity"`
	// Geodetic marks points as x=longitude, y=latitude in degrees.
	Geodetic bool `json:"geodetic,omitempty"`

	Facilities        int     `json:"facilities,omitempty"`
	MaxDistance       float64 `json:"maxDistance,omitempty"`
	Steps             int     `json:"steps,omitempty"`
	ScaleCount        int     `json:"scaleCount,omitempty"`
	BufferSize        int     `json:"bufferSize,omitempty"`
	SafetyFactor      float64 `json:"safetyFactor,omitempty"`
	DisableMultiscale bool    `json:"disableMultiscale,omitempty"`
	DisableRelaxation bool    `json:"disableRelaxation,omitempty"`
	DisableRetry      bool    `json:"disableRetry,omitempty"`
	MaxRetries        int     `json:"maxRetries,omitempty"`
	StrictCapacity    bool    `json:"strictCapacity,omitempty"`
	Seed              uint64  `json:"seed,omitempty"`
	Debug             bool    `json:"debug,omitempty"`

	Async          bool   `json:"async,omitempty"`
	CallbackURL    string `json:"callbackUrl,omitempty"`
	CallbackSecret string `json:"callbackSecret,omitempty"`
}

// Apply overlays the request's engine fields onto base.
func (r *OptimizeRequest) Apply(base opt.Options) opt.Options {
	o := base
	if r.Facilities > 0 {
		o.FacilityCount = r.Facilities
	}
	if r.MaxDistance > 0 {
		o.MaxDistance = r.MaxDistance
	}
	if r.Steps > 0 {
		o.Steps = r.Steps
	}
	if r.ScaleCount > 0 {
		o.ScaleCount = r.ScaleCount
	}
	if r.BufferSize > 0 {
		o.BufferSize = r.BufferSize
	}
	if r.SafetyFactor > 0 {
		o.SafetyFactor = r.SafetyFactor
	}
	if r.MaxRetries > 0 {
		o.MaxRetries = r.MaxRetries
	}
	o.DisableMultiscale = o.DisableMultiscale || r.DisableMultiscale
	o.DisableRelaxation = o.DisableRelaxation || r.DisableRelaxation
	o.DisableRetry = o.DisableRetry || r.DisableRetry
	o.StrictCapacity = o.StrictCapacity || r.StrictCapacity
	o.Seed = r.Seed
	o.Debug = r.Debug
	return o
}

// Origin anchors the tangent plane of a geodetic run.
type Origin struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Plane rebuilds the projection, or returns nil for a planar run.
func (o *Origin) Plane() *geo.LocalXY {
	if o == nil {
		return nil
	}
	p := geo.NewLocalXY(o.Lat, o.Lon)
	return &p
}

// Run is one optimisation as stored.
type Run struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Request     OptimizeRequest `json:"request"`
	Origin      *Origin         `json:"origin,omitempty"`
	Result      *opt.Result     `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Summary drops the request and result payloads.
func (r Run) Summary() RunSummary {
	s := RunSummary{ID: r.ID, Status: r.Status, Points: len(r.Request.Points), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.Result != nil {
		s.Facilities = len(r.Result.Taps)
		s.Energy = r.Result.Energy
		s.MaxDistance = r.Result.MaxDistance
		s.Violations = r.Result.Violations
	}
	return s
}

// RunSummary is one row of GET /v1/runs.
type RunSummary struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Points      int       `json:"points"`
	Facilities  int       `json:"facilities,omitempty"`
	Energy      float64   `json:"energy,omitempty"`
	MaxDistance float64   `json:"maxDistance,omitempty"`
	Violations  int       `json:"violations,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RunOut is the response to an optimise call.
type RunOut struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Cached bool        `json:"cached,omitempty"`
	Origin *Origin     `json:"origin,omitempty"`
	Result *opt.Result `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Out converts a stored run to its response form.
func (r Run) Out() RunOut {
	return RunOut{ID: r.ID, Status: r.Status, Origin: r.Origin, Result: r.Result, Error: r.Error}
}

// ProgressEvent is published on a run's event stream.
type ProgressEvent struct {
	RunID string `json:"runId"`
	opt.Progress
}

// CompletionEvent is the webhook body sent when an async run ends.
type CompletionEvent struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	TS    time.Time  `json:"ts"`
	Run   RunSummary `json:"run"`
	Error string     `json:"error,omitempty"`
}
