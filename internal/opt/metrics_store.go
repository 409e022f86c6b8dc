package opt

import "sync"

// maxStoredMetrics bounds the process-local metrics history.
const maxStoredMetrics = 256

// RunMetrics pairs a run id with the metrics of its final attempt.
type RunMetrics struct {
	Run     string  `json:"run"`
	Metrics Metrics `json:"metrics"`
}

var (
	mu    sync.Mutex
	store = map[string]Metrics{}
	order []string
)

// RecordMetrics stores m under run, evicting the oldest entry once the
// history is full. Re-recording a run replaces its metrics.
func RecordMetrics(run string, m Metrics) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := store[run]; !ok {
		order = append(order, run)
		if len(order) > maxStoredMetrics {
			delete(store, order[0])
			order = order[1:]
		}
	}
	store[run] = m
}

func GetMetrics(run string) (Metrics, bool) {
	mu.Lock()
	defer mu.Unlock()
	m, ok := store[run]
	return m, ok
}

// RecentMetrics returns up to n entries, newest first.
func RecentMetrics(n int) []RunMetrics {
	mu.Lock()
	defer mu.Unlock()
	if n <= 0 || n > len(order) {
		n = len(order)
	}
	out := make([]RunMetrics, 0, n)
	for i := len(order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, RunMetrics{Run: order[i], Metrics: store[order[i]]})
	}
	return out
}
