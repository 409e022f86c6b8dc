// Package report renders optimisation results as CSV, GeoJSON, HTML and a
// JSON debug trace.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"taptimise/internal/geo"
	"taptimise/internal/opt"
)

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// coords returns the output coordinates of a planar position: lon/lat when
// proj is set, otherwise x/y unchanged.
func coords(proj *geo.LocalXY, x, y float64) (float64, float64) {
	if proj == nil {
		return x, y
	}
	p := proj.ToGeo(x, y)
	return p.Lon(), p.Lat()
}

// WriteHousesCSV writes one row per point with its facility and distance.
func WriteHousesCSV(w io.Writer, res *opt.Result, proj *geo.LocalXY) error {
	cw := csv.NewWriter(w)
	head := []string{"x", "y", "tap", "distance"}
	if proj != nil {
		head[0], head[1] = "lon", "lat"
	}
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("report: houses csv: %w", err)
	}
	for _, h := range res.Houses {
		x, y := coords(proj, h.X, h.Y)
		if err := cw.Write([]string{ftoa(x), ftoa(y), strconv.Itoa(h.Tap), ftoa(h.Distance)}); err != nil {
			return fmt.Errorf("report: houses csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTapsCSV writes one row per facility. Empty facilities have blank
// coordinates.
func WriteTapsCSV(w io.Writer, res *opt.Result, proj *geo.LocalXY) error {
	cw := csv.NewWriter(w)
	head := []string{"index", "x", "y", "load", "load_fraction", "houses"}
	if proj != nil {
		head[1], head[2] = "lon", "lat"
	}
	if err := cw.Write(head); err != nil {
		return fmt.Errorf("report: taps csv: %w", err)
	}
	for _, t := range res.Taps {
		xs, ys := "", ""
		if !t.Empty {
			x, y := coords(proj, t.X, t.Y)
			xs, ys = ftoa(x), ftoa(y)
		}
		rec := []string{strconv.Itoa(t.Index), xs, ys, ftoa(t.Load), ftoa(t.LoadFraction), strconv.Itoa(t.Houses)}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: taps csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrace writes the debug trace as a JSON array of
// [temperature, energy, fav, unfav_accept, unfav_reject] records.
func WriteTrace(w io.Writer, trace []opt.TraceRecord) error {
	if trace == nil {
		trace = []opt.TraceRecord{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(trace); err != nil {
		return fmt.Errorf("report: trace: %w", err)
	}
	return nil
}
