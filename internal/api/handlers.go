package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"taptimise/internal/model"
	"taptimise/internal/opt"
	"taptimise/internal/report"
	"taptimise/internal/store"
)

// bytesPerPoint bounds request bodies relative to Server.MaxPoints.
const bytesPerPoint = 256

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.OptimizeRequest
	limit := int64(s.Cfg.Server.MaxPoints+1) * bytesPerPoint
	if err := decodeJSON(w, r, limit, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if !req.Async {
		out, err := s.Solve(r.Context(), req)
		if err != nil {
			instance := r.URL.Path
			if out.ID != "" {
				instance = "/v1/runs/" + out.ID
			}
			writeProblem(w, statusFor(err), "Optimization failed", err.Error(), instance)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	if err := validateOptimizeRequest(&req, s.Cfg.Server.MaxPoints); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	if prev, ok := s.cached(r.Context(), req); ok {
		s.notifyCached(prev, req)
		writeJSON(w, http.StatusOK, cachedOut(prev))
		return
	}
	run, err := s.Store.SaveRun(r.Context(), model.Run{Status: model.StatusQueued, Fingerprint: fingerprint(req, s.Cfg.Optimizer), Request: req})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}
	s.submit(run)
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, model.RunOut{ID: run.ID, Status: run.Status})
}

// OptimizerConfigHandler returns the engine defaults requests are merged over.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults":  s.Cfg.Optimizer,
		"maxPoints": s.Cfg.Server.MaxPoints,
	})
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), q.Get("cursor"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// loadRun fetches the {id} run or writes the problem response.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (model.Run, bool) {
	id := r.PathValue("id")
	run, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", id, r.URL.Path)
		return run, false
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return run, false
	}
	return run, true
}

// loadResult is loadRun for endpoints that need a finished result.
func (s *Server) loadResult(w http.ResponseWriter, r *http.Request) (model.Run, bool) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return run, false
	}
	if run.Result == nil {
		writeProblem(w, http.StatusConflict, "Run has no result", "status "+run.Status, r.URL.Path)
		return run, false
	}
	return run, true
}

// RunHandler handles GET /v1/runs/{id}
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunGeoJSONHandler handles GET /v1/runs/{id}/geojson
func (s *Server) RunGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	b, err := report.FeatureCollection(run.Result, run.Origin.Plane()).MarshalJSON()
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Encode GeoJSON failed", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(b)
}

// RunReportHandler handles GET /v1/runs/{id}/report
func (s *Server) RunReportHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, "taptimise run "+run.ID, run.Result, run.Origin.Plane()); err != nil {
		s.Log.Warn("report_render_failed", "run", run.ID, "err", err)
	}
}

// RunCSVHandler handles GET /v1/runs/{id}/csv?kind=houses|taps
func (s *Server) RunCSVHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "houses"
	}
	if kind != "houses" && kind != "taps" {
		writeProblem(w, http.StatusBadRequest, "Invalid kind", "kind must be houses or taps", r.URL.Path)
		return
	}
	run, ok := s.loadResult(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind+".csv"))
	write := report.WriteHousesCSV
	if kind == "taps" {
		write = report.WriteTapsCSV
	}
	if err := write(w, run.Result, run.Origin.Plane()); err != nil {
		s.Log.Warn("csv_render_failed", "run", run.ID, "err", err)
	}
}

func finished(status string) bool {
	return status == model.StatusDone || status == model.StatusFailed
}

func writeSSE(w http.ResponseWriter, f http.Flusher, evt SSEEvent) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
	f.Flush()
}

// RunEventsHandler streams a run's progress as server-sent events until the
// run ends or the client goes away.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(run.ID)
	defer s.Broker.Unsubscribe(run.ID, ch)

	// re-read after subscribing so a run finishing in between is not missed
	if cur, err := s.Store.GetRun(r.Context(), run.ID); err == nil {
		run = cur
	}
	writeSSE(w, flusher, SSEEvent{Type: EventStatus, Data: map[string]any{"runId": run.ID, "status": run.Status}})
	if finished(run.Status) {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, flusher, evt)
			if evt.Type == EventStatus && finished(statusOf(evt.Data)) {
				return
			}
		case <-heartbeat.C:
			writeSSE(w, flusher, SSEEvent{Type: "heartbeat", Data: map[string]any{"runId": run.ID, "ts": time.Now().UTC().Format(time.RFC3339)}})
		}
	}
}

// statusOf reads the status field of a status event, which arrives as a
// map from either broker.
func statusOf(data any) string {
	if m, ok := data.(map[string]any); ok {
		st, _ := m["status"].(string)
		return st
	}
	return ""
}

// RunMetricsHandler handles GET /v1/admin/run-metrics?limit=n, the engine
// metrics of recent runs in this process.
func (s *Server) RunMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("run"); id != "" {
		m, ok := opt.GetMetrics(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "No metrics for run", id, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, opt.RunMetrics{Run: id, Metrics: m})
		return
	}
	n := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			n = k
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": opt.RecentMetrics(n)})
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler checks the store and, when it can, the broker.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if b, ok := s.Broker.(pinger); ok {
		if err := b.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
