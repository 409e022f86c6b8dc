// Package jsonfile reads demand points from JSON. Accepted shapes are an
// array of objects ({"x","y","demand","maxDistance"} or "lat"/"lon"), an
// array of [x, y, demand] tuples, and a GeoJSON FeatureCollection of Point
// features carrying a "demand" property.
package jsonfile

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"

	"taptimise/internal/integrations"
	"taptimise/internal/opt"
)

type Adapter struct {
	Path   string
	Reader io.Reader
	// Geodetic marks plain arrays as lon/lat. GeoJSON is always geodetic.
	Geodetic bool
}

func (a Adapter) Name() string { return "json" }

func (a Adapter) Fetch(ctx context.Context) (integrations.Batch, error) {
	var batch integrations.Batch
	var data []byte
	var err error
	if a.Reader != nil {
		data, err = io.ReadAll(a.Reader)
	} else {
		data, err = os.ReadFile(a.Path)
	}
	if err != nil {
		return batch, fmt.Errorf("jsonfile: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return batch, fmt.Errorf("jsonfile: invalid JSON")
	}
	doc := gjson.ParseBytes(data)

	switch {
	case doc.Get("type").String() == "FeatureCollection":
		batch.Geodetic = true
		err = a.features(ctx, doc.Get("features"), &batch)
	case doc.IsArray():
		batch.Geodetic = a.Geodetic
		err = a.rows(ctx, doc, &batch)
	case doc.Get("points").IsArray():
		batch.Geodetic = a.Geodetic || doc.Get("geodetic").Bool()
		err = a.rows(ctx, doc.Get("points"), &batch)
	default:
		return batch, fmt.Errorf("jsonfile: expected array, {\"points\": [...]} or FeatureCollection")
	}
	if err != nil {
		return batch, err
	}
	if len(batch.Points) == 0 {
		return batch, integrations.ErrNoRows
	}
	return batch, nil
}

func (a Adapter) rows(ctx context.Context, arr gjson.Result, batch *integrations.Batch) error {
	row := 0
	var err error
	arr.ForEach(func(_, v gjson.Result) bool {
		row++
		if err = ctx.Err(); err != nil {
			return false
		}
		p, reason := parseValue(v)
		add(batch, row, p, reason)
		return true
	})
	return err
}

func parseValue(v gjson.Result) (opt.Point, string) {
	if v.IsArray() {
		t := v.Array()
		if len(t) < 3 {
			return opt.Point{}, "tuple needs x, y, demand"
		}
		for _, e := range t {
			if e.Type != gjson.Number {
				return opt.Point{}, "tuple elements must be numbers"
			}
		}
		p := opt.Point{X: t[0].Float(), Y: t[1].Float(), Demand: t[2].Float()}
		if len(t) > 3 {
			p.MaxDistance = t[3].Float()
		}
		return p, ""
	}
	if !v.IsObject() {
		return opt.Point{}, "row must be an object or array"
	}
	x, y := v.Get("x"), v.Get("y")
	if !x.Exists() {
		x = first(v, "lon", "lng", "longitude")
	}
	if !y.Exists() {
		y = first(v, "lat", "latitude")
	}
	d := first(v, "demand", "load", "people")
	for _, f := range []struct {
		name string
		r    gjson.Result
	}{{"x", x}, {"y", y}, {"demand", d}} {
		if f.r.Type != gjson.Number {
			return opt.Point{}, "missing or non-numeric " + f.name
		}
	}
	p := opt.Point{X: x.Float(), Y: y.Float(), Demand: d.Float()}
	if md := first(v, "maxDistance", "max_distance"); md.Exists() {
		if md.Type != gjson.Number {
			return opt.Point{}, "non-numeric maxDistance"
		}
		p.MaxDistance = md.Float()
	}
	return p, ""
}

func (a Adapter) features(ctx context.Context, fs gjson.Result, batch *integrations.Batch) error {
	if !fs.IsArray() {
		return fmt.Errorf("jsonfile: FeatureCollection without features array")
	}
	row := 0
	var err error
	fs.ForEach(func(_, f gjson.Result) bool {
		row++
		if err = ctx.Err(); err != nil {
			return false
		}
		if t := f.Get("geometry.type").String(); t != "Point" {
			add(batch, row, opt.Point{}, fmt.Sprintf("geometry %q is not a Point", t))
			return true
		}
		c := f.Get("geometry.coordinates").Array()
		if len(c) < 2 {
			add(batch, row, opt.Point{}, "point needs two coordinates")
			return true
		}
		d := first(f.Get("properties"), "demand", "load", "people")
		if d.Type != gjson.Number {
			add(batch, row, opt.Point{}, "missing or non-numeric demand property")
			return true
		}
		p := opt.Point{X: c[0].Float(), Y: c[1].Float(), Demand: d.Float()}
		if md := first(f.Get("properties"), "maxDistance", "max_distance"); md.Type == gjson.Number {
			p.MaxDistance = md.Float()
		}
		add(batch, row, p, "")
		return true
	})
	return err
}

func first(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func add(batch *integrations.Batch, row int, p opt.Point, reason string) {
	if reason == "" {
		reason = integrations.CheckPoint(p)
	}
	if reason != "" {
		batch.Skipped = append(batch.Skipped, integrations.RowIssue{Row: row, Reason: reason})
		return
	}
	batch.Points = append(batch.Points, p)
}
