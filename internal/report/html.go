package report

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"taptimise/internal/geo"
	"taptimise/internal/opt"
)

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"f5":  func(v float64) string { return fmt.Sprintf("%.5g", v) },
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:sans-serif}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:2px 6px;text-align:right}.over{background:#fdd}</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>facilities</th><td>{{len .Res.Taps}}</td></tr>
<tr><th>points</th><td>{{len .Res.Houses}}</td></tr>
<tr><th>max distance</th><td>{{f5 .Res.MaxDistance}}</td></tr>
<tr><th>points beyond cap</th><td>{{.Res.Violations}}</td></tr>
<tr><th>energy</th><td>{{f5 .Res.Energy}}</td></tr>
<tr><th>attempts</th><td>{{.Res.Attempts}}</td></tr>
<tr><th>seed</th><td>{{.Res.Seed}}</td></tr>
<tr><th>sweeps</th><td>{{.Res.Metrics.Sweeps}}</td></tr>
<tr><th>scales run</th><td>{{.Res.Metrics.ScalesRun}} / {{.Res.Metrics.ScalesPlanned}}</td></tr>
<tr><th>elapsed</th><td>{{.Elapsed}}</td></tr>
</table>
<h2>Facilities</h2>
<table>
<tr><th>index</th><th>{{.XName}}</th><th>{{.YName}}</th><th>load</th><th>load %</th><th>points</th></tr>
{{range .Taps}}<tr{{if gt .LoadFraction 1.0}} class="over"{{end}}><td>{{.Index}}</td>{{if .Empty}}<td colspan="2">unused</td>{{else}}<td>{{f5 .X}}</td><td>{{f5 .Y}}</td>{{end}}<td>{{f5 .Load}}</td><td>{{pct .LoadFraction}}</td><td>{{.Houses}}</td></tr>
{{end}}</table>
<h2>Points</h2>
<table>
<tr><th>#</th><th>{{.XName}}</th><th>{{.YName}}</th><th>facility</th><th>distance</th></tr>
{{range $i, $h := .Houses}}<tr><td>{{$i}}</td><td>{{f5 $h.X}}</td><td>{{f5 $h.Y}}</td><td>{{$h.Tap}}</td><td>{{f5 $h.Distance}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type pageData struct {
	Title        string
	Res          *opt.Result
	Taps         []opt.TapResult
	Houses       []opt.HouseResult
	XName, YName string
	Elapsed      string
}

// WriteHTML renders a summary page with facility and point tables.
func WriteHTML(w io.Writer, title string, res *opt.Result, proj *geo.LocalXY) error {
	d := pageData{
		Title:   title,
		Res:     res,
		Taps:    make([]opt.TapResult, len(res.Taps)),
		Houses:  make([]opt.HouseResult, len(res.Houses)),
		XName:   "x",
		YName:   "y",
		Elapsed: res.Metrics.Elapsed.Round(time.Millisecond).String(),
	}
	if proj != nil {
		d.XName, d.YName = "lon", "lat"
	}
	for i, t := range res.Taps {
		if !t.Empty {
			t.X, t.Y = coords(proj, t.X, t.Y)
		}
		d.Taps[i] = t
	}
	for i, h := range res.Houses {
		h.X, h.Y = coords(proj, h.X, h.Y)
		d.Houses[i] = h
	}
	if err := page.Execute(w, d); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}
	return nil
}
