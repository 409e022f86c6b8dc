package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that every API
// replica can stream runs executed by any other.
type RedisBroker struct {
	rdb *redis.Client
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string, log *slog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return newRedisBroker(redis.NewClient(opt), log), nil
}

func newRedisBroker(rdb *redis.Client, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, log: log, subs: map[chan SSEEvent]*redis.PubSub{}}
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// wait for the subscription confirmation so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn("redis_subscribe_failed", "run", runID, "err", err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer b.drop(ch)
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// drop closes ch once, whichever of Unsubscribe or a lost connection
// comes first.
func (b *RedisBroker) drop(ch chan SSEEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
		close(ch)
	}
}

func (b *RedisBroker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	b.mu.Unlock()
	if ok {
		// closing the PubSub ends the forwarding goroutine, which closes ch
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(runID), data).Err(); err != nil {
		b.log.Debug("redis_publish_failed", "run", runID, "err", err)
	}
}

func (b *RedisBroker) chanName(runID string) string { return "taptimise:run:" + runID }
