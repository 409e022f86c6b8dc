// Command taptimise places capacity-limited taps over a set of houses and
// writes the assignment as CSV, GeoJSON and an HTML report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"taptimise/internal/buildinfo"
	"taptimise/internal/config"
	"taptimise/internal/geo"
	"taptimise/internal/integrations"
	"taptimise/internal/integrations/csvfile"
	"taptimise/internal/integrations/jsonfile"
	"taptimise/internal/logger"
	"taptimise/internal/opt"
	"taptimise/internal/partition"
	"taptimise/internal/report"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "taptimise:", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	facilities  int
	maxDistance float64
	steps       int
	scales      int
	buffer      int
	overload    float64
	seed        uint64
	noMulti     bool
	noAuto      bool
	noRelax     bool
	geodetic    bool
	batches     int
	batchTaps   int
	parallel    int
	configPath  string
	out         string
	debug       bool
	version     bool
	logLevel    string
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, *flag.FlagSet, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("taptimise", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&f.facilities, "n", 0, "number of taps (default: total demand / max load)")
	fs.Float64Var(&f.maxDistance, "m", 0, "maximum house-to-tap distance; adds taps until met")
	fs.IntVar(&f.steps, "s", 0, "sweeps per temperature scale")
	fs.IntVar(&f.scales, "scales", 0, "fixed number of temperature scales")
	fs.IntVar(&f.buffer, "buffer", 0, "locality buffer size (default taps × 5)")
	fs.Float64Var(&f.overload, "overload", 0, "load fraction above which a tap may tunnel")
	fs.Uint64Var(&f.seed, "seed", 0, "random seed (0 picks one)")
	fs.BoolVar(&f.noMulti, "disable-multiscale", false, "use two fixed scales instead of estimating them")
	fs.BoolVar(&f.noAuto, "disable-auto", false, "do not add taps when -m is exceeded")
	fs.BoolVar(&f.noRelax, "disable-relax", false, "skip pairwise relaxation")
	fs.BoolVar(&f.geodetic, "geodetic", false, "input columns are latitude,longitude")
	fs.IntVar(&f.batches, "batches", 1, "split houses into this many k-means batches (0 = auto)")
	fs.IntVar(&f.batchTaps, "batch-taps", 40, "target taps per batch when -batches=0")
	fs.IntVar(&f.parallel, "parallel", 1, "batches optimised at once")
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.out, "out", ".", "output directory")
	fs.BoolVar(&f.debug, "debug", false, "also write trace.json")
	fs.BoolVar(&f.version, "v", false, "print version and exit")
	fs.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: taptimise [flags] <houses.csv|houses.json> <max-load>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return f, fs, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errUsage
	}
	capacity, err := strconv.ParseFloat(fs.Arg(1), 64)
	if err != nil || !(capacity > 0) {
		return fmt.Errorf("max load must be a positive number, got %q", fs.Arg(1))
	}

	cfg := config.Default()
	if f.configPath != "" {
		if cfg, err = config.Load(f.configPath); err != nil {
			return err
		}
	}
	level := f.logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	log := logger.New(stderr, level, cfg.Log.Format)

	batch, err := source(fs.Arg(0), f.geodetic).Fetch(ctx)
	if err != nil {
		return err
	}
	for _, s := range batch.Skipped {
		log.Warn("row_skipped", "row", s.Row, "reason", s.Reason)
	}
	var proj *geo.LocalXY
	if p, ok := batch.Project(); ok {
		proj = &p
		log.Info("projected", "lat0", p.Lat0, "lon0", p.Lon0)
	}

	opts := cfg.Optimizer.Options()
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	applyFlags(&opts, f, set)
	opts.Logger = log
	opts.Progress = func(p opt.Progress) {
		if p.Sweep == 0 {
			log.Debug("scale_start", "attempt", p.Attempt, "facilities", p.Facilities, "scale", p.Scale, "quench", p.Quench, "kB", p.KB, "energy", p.Energy)
		}
	}

	res, err := optimise(ctx, batch.Points, capacity, opts, f, log)
	if err != nil {
		return err
	}
	if err := writeOutputs(f.out, fs.Arg(0), res, proj, f.debug); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "taps=%d energy=%.4g max_distance=%.4g violations=%d attempts=%d seed=%d elapsed=%s\n",
		len(res.Taps), res.Energy, res.MaxDistance, res.Violations, res.Attempts, res.Seed, res.Metrics.Elapsed)
	return nil
}

func source(path string, geodetic bool) integrations.HouseSource {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		return jsonfile.Adapter{Path: path, Geodetic: geodetic}
	}
	return csvfile.Adapter{Path: path, Geodetic: geodetic}
}

func applyFlags(o *opt.Options, f *cliFlags, set map[string]bool) {
	if set["n"] {
		o.FacilityCount = f.facilities
	}
	if set["m"] {
		o.MaxDistance = f.maxDistance
	}
	if set["s"] {
		o.Steps = f.steps
	}
	if set["scales"] {
		o.ScaleCount = f.scales
	}
	if set["buffer"] {
		o.BufferSize = f.buffer
	}
	if set["overload"] {
		o.OverloadThreshold = f.overload
	}
	if set["seed"] {
		o.Seed = f.seed
	}
	o.DisableMultiscale = o.DisableMultiscale || f.noMulti
	o.DisableRetry = o.DisableRetry || f.noAuto
	o.DisableRelaxation = o.DisableRelaxation || f.noRelax
	o.Debug = f.debug
}

func optimise(ctx context.Context, pts []opt.Point, capacity float64, opts opt.Options, f *cliFlags, log *slog.Logger) (*opt.Result, error) {
	k := f.batches
	if k == 0 {
		k = partition.ClusterCount(pts, capacity, f.batchTaps, opts.SafetyFactor)
	}
	if k <= 1 {
		return opt.Optimize(ctx, pts, capacity, opts)
	}
	opts.Seed = opt.ResolveSeed(opts.Seed)
	batches := partition.KMeans(pts, k, opt.NewRand(opts.Seed))
	log.Info("partitioned", "batches", len(batches), "parallel", f.parallel)
	return partition.Run(ctx, batches, capacity, opts, f.parallel)
}

func writeOutputs(dir, input string, res *opt.Result, proj *geo.LocalXY, debug bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	write := func(name string, fn func(io.Writer) error) error {
		fh, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := fn(fh); err != nil {
			_ = fh.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		return fh.Close()
	}
	title := "taptimise: " + filepath.Base(input)
	steps := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{"houses.csv", func(w io.Writer) error { return report.WriteHousesCSV(w, res, proj) }},
		{"taps.csv", func(w io.Writer) error { return report.WriteTapsCSV(w, res, proj) }},
		{"result.geojson", func(w io.Writer) error {
			b, err := report.FeatureCollection(res, proj).MarshalJSON()
			if err != nil {
				return err
			}
			_, err = w.Write(b)
			return err
		}},
		{"report.html", func(w io.Writer) error { return report.WriteHTML(w, title, res, proj) }},
	}
	if debug {
		steps = append(steps, struct {
			name string
			fn   func(io.Writer) error
		}{"trace.json", func(w io.Writer) error { return report.WriteTrace(w, res.Trace) }})
	}
	for _, s := range steps {
		if err := write(s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}
