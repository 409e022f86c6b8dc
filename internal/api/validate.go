package api

import (
	"fmt"
	"math"
	"net/url"

	"taptimise/internal/integrations"
	"taptimise/internal/model"
)

// maxReported caps how many bad points one error lists.
const maxReported = 5

func validateOptimizeRequest(req *model.OptimizeRequest, maxPoints int) error {
	if len(req.Points) == 0 {
		return fmt.Errorf("points must not be empty")
	}
	if maxPoints > 0 && len(req.Points) > maxPoints {
		return fmt.Errorf("too many points: %d > %d", len(req.Points), maxPoints)
	}
	if !(req.Capacity > 0) || math.IsInf(req.Capacity, 1) {
		return fmt.Errorf("capacity must be positive and finite")
	}
	switch {
	case req.Facilities < 0:
		return fmt.Errorf("facilities must be >= 0")
	case req.Facilities > len(req.Points):
		return fmt.Errorf("facilities must not exceed the number of points")
	case req.MaxDistance < 0:
		return fmt.Errorf("maxDistance must be >= 0")
	case req.Steps < 0 || req.ScaleCount < 0 || req.BufferSize < 0 || req.MaxRetries < 0:
		return fmt.Errorf("steps, scaleCount, bufferSize and maxRetries must be >= 0")
	case req.SafetyFactor < 0:
		return fmt.Errorf("safetyFactor must be >= 0")
	}
	var bad []string
	for i, p := range req.Points {
		reason := integrations.CheckPoint(p)
		if reason == "" && req.Geodetic && (p.Y < -90 || p.Y > 90 || p.X < -180 || p.X > 180) {
			reason = "longitude/latitude out of range"
		}
		if reason != "" {
			bad = append(bad, fmt.Sprintf("point %d: %s", i, reason))
			if len(bad) == maxReported {
				break
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid points: %v", bad)
	}
	if req.CallbackURL != "" {
		if !req.Async {
			return fmt.Errorf("callbackUrl requires async")
		}
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
		}
	}
	return nil
}
