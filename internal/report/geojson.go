package report

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"taptimise/internal/geo"
	"taptimise/internal/opt"
)

// FeatureCollection renders taps and houses as Point features. Features
// carry a "kind" property of "tap" or "house". Empty taps have no position
// and are left out. With proj nil the planar coordinates are emitted as they
// are.
func FeatureCollection(res *opt.Result, proj *geo.LocalXY) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range res.Taps {
		if t.Empty {
			continue
		}
		x, y := coords(proj, t.X, t.Y)
		f := geojson.NewFeature(orb.Point{x, y})
		f.Properties["kind"] = "tap"
		f.Properties["index"] = t.Index
		f.Properties["load"] = t.Load
		f.Properties["loadFraction"] = t.LoadFraction
		f.Properties["houses"] = t.Houses
		fc.Append(f)
	}
	for i, h := range res.Houses {
		x, y := coords(proj, h.X, h.Y)
		f := geojson.NewFeature(orb.Point{x, y})
		f.Properties["kind"] = "house"
		f.Properties["house"] = i
		f.Properties["tap"] = h.Tap
		f.Properties["distance"] = h.Distance
		fc.Append(f)
	}
	return fc
}
