// Package integrations reads demand points from external sources. Malformed
// rows are reported per row instead of aborting the whole read.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"taptimise/internal/geo"
	"taptimise/internal/opt"
)

var ErrNoRows = errors.New("integrations: no usable rows")

// HouseSource is implemented by every input adapter.
type HouseSource interface {
	Name() string
	Fetch(ctx context.Context) (Batch, error)
}

// RowIssue records why an input row was skipped. Row is 1-based within the
// source (line for CSV, element for JSON).
type RowIssue struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (r RowIssue) String() string { return fmt.Sprintf("row %d: %s", r.Row, r.Reason) }

// Batch is the outcome of one Fetch. When Geodetic is set, X holds
// longitude and Y latitude until Project is called.
type Batch struct {
	Points   []opt.Point `json:"points"`
	Skipped  []RowIssue  `json:"skipped,omitempty"`
	Geodetic bool        `json:"geodetic,omitempty"`
}

// Project converts a geodetic batch to metres on a tangent plane centred
// on its points and returns the plane for mapping results back. Planar
// batches are left as they are and ok is false.
func (b *Batch) Project() (proj geo.LocalXY, ok bool) {
	if !b.Geodetic {
		return geo.LocalXY{}, false
	}
	ll := make([]orb.Point, len(b.Points))
	for i, p := range b.Points {
		ll[i] = orb.Point{p.X, p.Y}
	}
	proj = geo.Centred(ll)
	for i := range b.Points {
		b.Points[i].X, b.Points[i].Y = proj.ToXY(ll[i])
	}
	b.Geodetic = false
	return proj, true
}

// CheckPoint returns why p cannot be optimised, or "" when it can.
func CheckPoint(p opt.Point) string {
	switch {
	case math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0):
		return "coordinate is not finite"
	case !(p.Demand > 0) || math.IsInf(p.Demand, 1):
		return "demand must be positive and finite"
	case p.MaxDistance < 0 || math.IsNaN(p.MaxDistance):
		return "max distance must not be negative"
	}
	return ""
}
