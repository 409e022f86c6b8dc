// Package csvfile reads demand points from CSV: x,y,demand[,max_distance],
// or lat,lon,demand[,max_distance] in geodetic mode. A leading header row
// naming the columns is optional.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"taptimise/internal/integrations"
	"taptimise/internal/opt"
)

// Adapter reads from Path, or from Reader when set.
type Adapter struct {
	Path     string
	Reader   io.Reader
	Geodetic bool
}

func (a Adapter) Name() string { return "csv" }

type columns struct {
	x, y, demand, maxDist int
}

func defaultColumns(geodetic bool) columns {
	if geodetic {
		// lat first, matching the usual lat,lon export order
		return columns{x: 1, y: 0, demand: 2, maxDist: 3}
	}
	return columns{x: 0, y: 1, demand: 2, maxDist: 3}
}

func (a Adapter) Fetch(ctx context.Context) (integrations.Batch, error) {
	batch := integrations.Batch{Geodetic: a.Geodetic}
	r := a.Reader
	if r == nil {
		f, err := os.Open(a.Path)
		if err != nil {
			return batch, fmt.Errorf("csvfile: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return batch, fmt.Errorf("csvfile: read: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	cols := defaultColumns(a.Geodetic)
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				batch.Skipped = append(batch.Skipped, integrations.RowIssue{Row: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return batch, fmt.Errorf("csvfile: %w", err)
		}
		if row == 1 {
			if h, ok := headerColumns(rec, a.Geodetic); ok {
				cols = h
				continue
			}
		}
		p, reason := parseRow(rec, cols)
		if reason == "" {
			reason = integrations.CheckPoint(p)
		}
		if reason != "" {
			line, _ := cr.FieldPos(0)
			batch.Skipped = append(batch.Skipped, integrations.RowIssue{Row: line, Reason: reason})
			continue
		}
		batch.Points = append(batch.Points, p)
	}
	if len(batch.Points) == 0 {
		return batch, integrations.ErrNoRows
	}
	return batch, nil
}

// headerColumns recognises a header row. Rows whose first cell parses as a
// number are data.
func headerColumns(rec []string, geodetic bool) (columns, bool) {
	if len(rec) == 0 {
		return columns{}, false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64); err == nil {
		return columns{}, false
	}
	c := columns{x: -1, y: -1, demand: -1, maxDist: -1}
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "x", "lon", "lng", "longitude", "easting":
			c.x = i
		case "y", "lat", "latitude", "northing":
			c.y = i
		case "demand", "load", "people", "weight":
			c.demand = i
		case "max_distance", "maxdistance", "max_dist":
			c.maxDist = i
		}
	}
	if c.x < 0 || c.y < 0 || c.demand < 0 {
		// unrecognised header: keep positional layout
		d := defaultColumns(geodetic)
		return d, true
	}
	return c, true
}

func parseRow(rec []string, c columns) (opt.Point, string) {
	get := func(i int, name string) (float64, string) {
		if i >= len(rec) {
			return 0, "missing " + name
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return 0, fmt.Sprintf("bad %s %q", name, rec[i])
		}
		return v, ""
	}
	var p opt.Point
	var reason string
	if p.X, reason = get(c.x, "x"); reason != "" {
		return p, reason
	}
	if p.Y, reason = get(c.y, "y"); reason != "" {
		return p, reason
	}
	if p.Demand, reason = get(c.demand, "demand"); reason != "" {
		return p, reason
	}
	if c.maxDist >= 0 && c.maxDist < len(rec) && strings.TrimSpace(rec[c.maxDist]) != "" {
		if p.MaxDistance, reason = get(c.maxDist, "max_distance"); reason != "" {
			return p, reason
		}
	}
	return p, ""
}
