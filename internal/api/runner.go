package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taptimise/internal/integrations"
	"taptimise/internal/metrics"
	"taptimise/internal/model"
	"taptimise/internal/opt"
)

var (
	ErrInvalidRequest = errors.New("invalid optimize request")
	ErrBusy           = errors.New("optimizer busy")
)

// progressInterval throttles per-sweep progress events per run.
const progressInterval = 100 * time.Millisecond

// prepare projects geodetic points onto a plane centred on them and merges
// the request over the configured optimizer defaults.
func (s *Server) prepare(req model.OptimizeRequest) ([]opt.Point, *model.Origin, opt.Options) {
	b := integrations.Batch{Points: append([]opt.Point(nil), req.Points...), Geodetic: req.Geodetic}
	var origin *model.Origin
	if proj, ok := b.Project(); ok {
		origin = &model.Origin{Lat: proj.Lat0, Lon: proj.Lon0}
	}
	opts := req.Apply(s.Cfg.Optimizer.Options())
	opts.Logger = s.Log
	return b.Points, origin, opts
}

// execute optimises run and stores the outcome. The returned error is the
// optimiser's; the returned run is what was stored.
func (s *Server) execute(ctx context.Context, run model.Run) (model.Run, error) {
	pts, origin, opts := s.prepare(run.Request)
	run.Origin = origin
	run.Status = model.StatusRunning
	if saved, err := s.Store.SaveRun(ctx, run); err != nil {
		s.Log.Warn("run_save_failed", "run", run.ID, "status", run.Status, "err", err)
	} else {
		run = saved
	}
	s.publishStatus(run)

	var last time.Time
	opts.Progress = func(p opt.Progress) {
		if now := time.Now(); p.Sweep == 0 || now.Sub(last) >= progressInterval {
			last = now
			s.Broker.Publish(run.ID, SSEEvent{Type: EventProgress, Data: model.ProgressEvent{RunID: run.ID, Progress: p}})
		}
	}
	if t := s.Cfg.Optimizer.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	s.Log.Info("run_start", "run", run.ID, "points", len(pts), "capacity", run.Request.Capacity, "async", run.Request.Async)
	res, optErr := opt.Optimize(ctx, pts, run.Request.Capacity, opts)
	if optErr != nil {
		run.Status = model.StatusFailed
		run.Error = optErr.Error()
		metrics.ObserveRun(model.StatusFailed, nil, 0)
		s.Log.Warn("run_failed", "run", run.ID, "err", optErr)
	} else {
		run.Status = model.StatusDone
		run.Result = res
		opt.RecordMetrics(run.ID, res.Metrics)
		metrics.ObserveRun(model.StatusDone, &res.Metrics, res.Attempts)
		s.Log.Info("run_done", "run", run.ID, "facilities", len(res.Taps), "energy", res.Energy,
			"max_distance", res.MaxDistance, "attempts", res.Attempts, "elapsed", res.Metrics.Elapsed)
	}

	saved, err := s.Store.SaveRun(context.WithoutCancel(ctx), run)
	if err != nil {
		s.Log.Error("run_save_failed", "run", run.ID, "status", run.Status, "err", err)
	} else {
		run = saved
	}
	s.publishStatus(run)
	return run, optErr
}

// Solve validates req and optimises it on the worker pool, answering
// from a stored run when an identical seeded request already finished.
func (s *Server) Solve(ctx context.Context, req model.OptimizeRequest) (model.RunOut, error) {
	if err := validateOptimizeRequest(&req, s.Cfg.Server.MaxPoints); err != nil {
		return model.RunOut{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if prev, ok := s.cached(ctx, req); ok {
		return cachedOut(prev), nil
	}
	run, err := s.Store.SaveRun(ctx, model.Run{Status: model.StatusQueued, Fingerprint: fingerprint(req, s.Cfg.Optimizer), Request: req})
	if err != nil {
		return model.RunOut{}, fmt.Errorf("save run: %w", err)
	}
	if err := s.workers.Acquire(ctx, 1); err != nil {
		run = s.abandon(run, "no worker before request ended: "+err.Error())
		return run.Out(), fmt.Errorf("%w: %v", ErrBusy, err)
	}
	final, err := s.execute(ctx, run)
	s.workers.Release(1)
	return final.Out(), err
}

// cached looks up a finished run with the same fingerprint.
func (s *Server) cached(ctx context.Context, req model.OptimizeRequest) (model.Run, bool) {
	fp := fingerprint(req, s.Cfg.Optimizer)
	if fp == "" {
		return model.Run{}, false
	}
	prev, err := s.Store.FindByFingerprint(ctx, fp)
	if err != nil {
		return model.Run{}, false
	}
	metrics.CacheHits.Inc()
	return prev, true
}

func cachedOut(run model.Run) model.RunOut {
	out := run.Out()
	out.Cached = true
	return out
}

// notifyCached sends the completion callback of req for a run answered
// from the cache.
func (s *Server) notifyCached(prev model.Run, req model.OptimizeRequest) {
	if req.CallbackURL == "" {
		return
	}
	prev.Request.CallbackURL = req.CallbackURL
	prev.Request.CallbackSecret = req.CallbackSecret
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Pub.RunFinished(s.ctx, prev); err != nil {
			s.Log.Warn("run_callback_failed", "run", prev.ID, "cached", true, "err", err)
		}
	}()
}

// submit queues run on the worker pool and notifies its callback when done.
func (s *Server) submit(run model.Run) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.workers.Acquire(s.ctx, 1); err != nil {
			s.abandon(run, "server shutting down")
			return
		}
		final, _ := s.execute(s.ctx, run)
		s.workers.Release(1)
		if err := s.Pub.RunFinished(s.ctx, final); err != nil {
			s.Log.Warn("run_callback_failed", "run", run.ID, "err", err)
		}
	}()
}

// abandon marks a queued run that never reached a worker as failed.
func (s *Server) abandon(run model.Run, reason string) model.Run {
	run.Status = model.StatusFailed
	run.Error = reason
	saved, err := s.Store.SaveRun(context.Background(), run)
	if err != nil {
		s.Log.Error("run_save_failed", "run", run.ID, "err", err)
	} else {
		run = saved
	}
	metrics.ObserveRun(model.StatusFailed, nil, 0)
	s.publishStatus(run)
	return run
}

func (s *Server) publishStatus(run model.Run) {
	data := map[string]any{"runId": run.ID, "status": run.Status}
	if run.Error != "" {
		data["error"] = run.Error
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: EventStatus, Data: data})
}

// statusFor maps an optimiser error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, opt.ErrInsufficientCapacity),
		errors.Is(err, opt.ErrBadCapacity),
		errors.Is(err, opt.ErrBadDemand),
		errors.Is(err, opt.ErrNoPoints):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}
