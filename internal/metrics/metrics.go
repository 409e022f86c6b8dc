package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taptimise/internal/opt"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "taptimise_runs_total", Help: "Optimisation runs by final status."},
		[]string{"status"},
	)
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taptimise_run_duration_seconds",
		Help:    "Wall time of finished optimisation runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
	// Moves counts annealing proposals by outcome: favourable, accepted, rejected
	Moves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "taptimise_moves_total", Help: "Annealing proposals by outcome."},
		[]string{"outcome"},
	)
	Tunnels = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taptimise_tunnels_total", Help: "Overload escapes performed.",
	})
	RelaxSwaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taptimise_relax_swaps_total", Help: "Pairwise relaxation swaps kept.",
	})
	// Retries counts extra attempts made with one more facility
	Retries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taptimise_facility_retries_total", Help: "Reruns with an extra facility.",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taptimise_cache_hits_total", Help: "Requests answered from a stored run.",
	})

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Runs, RunDuration, Moves, Tunnels, RelaxSwaps, Retries, CacheHits)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler exposes Registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveRun records one finished run. m may be nil for runs that failed
// before producing a result.
func ObserveRun(status string, m *opt.Metrics, attempts int) {
	Runs.WithLabelValues(status).Inc()
	if m == nil {
		return
	}
	RunDuration.Observe(m.Elapsed.Seconds())
	Moves.WithLabelValues("favourable").Add(float64(m.Favourable))
	Moves.WithLabelValues("accepted").Add(float64(m.AcceptedWorse))
	Moves.WithLabelValues("rejected").Add(float64(m.Rejected))
	Tunnels.Add(float64(m.Tunnels))
	RelaxSwaps.Add(float64(m.RelaxSwaps))
	if attempts > 1 {
		Retries.Add(float64(attempts - 1))
	}
}
