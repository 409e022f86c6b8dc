package partition

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taptimise/internal/opt"
)

var ErrNoBatches = errors.New("partition: no batches")

// Run optimises every batch with opts, at most parallelism at a time, and
// merges the results. Batch i runs with a seed derived from the base seed
// and i, so the outcome does not depend on scheduling. A Progress callback
// in opts is serialised across batches.
func Run(ctx context.Context, batches [][]opt.Point, capacity float64, opts opt.Options, parallelism int) (*opt.Result, error) {
	if len(batches) == 0 {
		return nil, ErrNoBatches
	}
	if len(batches) == 1 {
		return opt.Optimize(ctx, batches[0], capacity, opts)
	}
	if parallelism < 1 {
		parallelism = 1
	}
	base := opt.ResolveSeed(opts.Seed)
	if opts.Progress != nil {
		var mu sync.Mutex
		progress := opts.Progress
		opts.Progress = func(p opt.Progress) {
			mu.Lock()
			defer mu.Unlock()
			progress(p)
		}
	}

	start := time.Now()
	results := make([]*opt.Result, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, b := range batches {
		o := opts
		o.Seed = opt.DeriveSeed(base, uint64(i))
		g.Go(func() error {
			r, err := opt.Optimize(gctx, b, capacity, o)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res := Merge(results)
	res.Seed = base
	res.Metrics.Elapsed = time.Since(start)
	return res, nil
}

// Merge concatenates batch results, offsetting facility indices so they
// stay unique. Houses come out grouped by batch.
func Merge(results []*opt.Result) *opt.Result {
	out := &opt.Result{}
	offset := 0
	for _, r := range results {
		for _, h := range r.Houses {
			h.Tap += offset
			out.Houses = append(out.Houses, h)
		}
		for _, t := range r.Taps {
			t.Index += offset
			out.Taps = append(out.Taps, t)
		}
		offset += len(r.Taps)

		out.Trace = append(out.Trace, r.Trace...)
		out.Energy += r.Energy
		out.Violations += r.Violations
		if r.MaxDistance > out.MaxDistance {
			out.MaxDistance = r.MaxDistance
		}
		if r.Attempts > out.Attempts {
			out.Attempts = r.Attempts
		}

		m, rm := &out.Metrics, r.Metrics
		m.Facilities += rm.Facilities
		m.Sweeps += rm.Sweeps
		m.Moves += rm.Moves
		m.Favourable += rm.Favourable
		m.AcceptedWorse += rm.AcceptedWorse
		m.Rejected += rm.Rejected
		m.Tunnels += rm.Tunnels
		m.RelaxSwaps += rm.RelaxSwaps
		m.InitialEnergy += rm.InitialEnergy
		m.FinalEnergy += rm.FinalEnergy
		m.Stationary = m.Stationary || rm.Stationary
		if rm.ScalesPlanned > m.ScalesPlanned {
			m.ScalesPlanned = rm.ScalesPlanned
		}
		if rm.ScalesRun > m.ScalesRun {
			m.ScalesRun = rm.ScalesRun
		}
	}
	return out
}
