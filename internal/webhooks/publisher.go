package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taptimise/internal/model"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// Publisher turns finished runs into completion callbacks.
type Publisher struct {
	Notifier *Notifier
	// Secret signs callbacks whose request carried no callbackSecret.
	Secret string
}

func NewPublisher(n *Notifier, secret string) *Publisher {
	return &Publisher{Notifier: n, Secret: secret}
}

// Payload builds the callback body and event type for run.
func Payload(run model.Run) (string, []byte, error) {
	typ := EventRunCompleted
	if run.Status == model.StatusFailed {
		typ = EventRunFailed
	}
	body, err := json.Marshal(model.CompletionEvent{
		ID:    fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		Type:  typ,
		TS:    time.Now().UTC(),
		Run:   run.Summary(),
		Error: run.Error,
	})
	return typ, body, err
}

// RunFinished notifies run's callback URL, if any. It blocks until the
// delivery succeeds or gives up.
func (p *Publisher) RunFinished(ctx context.Context, run model.Run) error {
	if p == nil || run.Request.CallbackURL == "" {
		return nil
	}
	typ, body, err := Payload(run)
	if err != nil {
		return err
	}
	secret := run.Request.CallbackSecret
	if secret == "" {
		secret = p.Secret
	}
	_, err = p.Notifier.Deliver(ctx, Delivery{URL: run.Request.CallbackURL, Secret: secret, EventType: typ, Payload: body})
	if err != nil {
		p.Notifier.Log.Error("webhook_gave_up", "run", run.ID, "url", run.Request.CallbackURL, "err", err)
	}
	return err
}
