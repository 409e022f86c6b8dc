package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taptimise/internal/metrics"
)

var ErrDeliveryFailed = errors.New("webhooks: delivery failed")

// Delivery is one signed POST.
type Delivery struct {
	URL       string
	Secret    string
	EventType string
	Payload   []byte
}

// Outcome reports how a delivery ended.
type Outcome struct {
	Attempts int
	Code     int
	Latency  time.Duration
}

// Notifier posts deliveries, retrying failures with exponential backoff.
type Notifier struct {
	HTTP        *http.Client
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Log         *slog.Logger
}

func NewNotifier(maxAttempts int, timeout time.Duration, log *slog.Logger) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{HTTP: &http.Client{Timeout: timeout}, MaxAttempts: maxAttempts, Backoff: nextBackoff, Log: log}
}

// Deliver posts d until a 2xx response, MaxAttempts is reached or ctx ends.
// 4xx responses other than 408 and 429 are not retried.
func (n *Notifier) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	var out Outcome
	var lastErr error
	for attempt := 0; attempt < n.MaxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(n.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return out, ctx.Err()
			case <-t.C:
			}
		}
		out.Attempts = attempt + 1
		code, latency, err := n.post(ctx, d)
		out.Code, out.Latency = code, latency
		status := "ok"
		if err != nil || code < 200 || code >= 300 {
			status = "fail"
		}
		metrics.WebhookDeliveries.WithLabelValues(d.EventType, status).Inc()
		metrics.WebhookLatency.WithLabelValues(d.EventType, status).Observe(float64(latency.Milliseconds()))
		if status == "ok" {
			n.Log.Debug("webhook_delivered", "url", d.URL, "event", d.EventType, "attempts", out.Attempts, "code", code)
			return out, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", code)
		}
		n.Log.Warn("webhook_attempt_failed", "url", d.URL, "event", d.EventType, "attempt", out.Attempts, "code", code, "err", lastErr)
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			break
		}
	}
	return out, fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, out.Attempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, d Delivery) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if d.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(d.Secret, d.Payload))
	}
	start := time.Now()
	resp, err := n.HTTP.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
