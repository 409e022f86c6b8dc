package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage frames every message in both directions. Clients send
// connection_init, ping, subscribe {"runId":...} and complete; the server
// answers connection_ack, pong, next, error and complete.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID string `json:"runId"`
}

const wsReadTimeout = 60 * time.Second

// RunWSHandler handles GET /v1/runs/ws. One connection may follow many runs.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	var (
		subsMu sync.Mutex
		subs   = map[string]sub{}
		wmu    sync.Mutex
		done   = make(chan struct{})
	)
	defer close(done)
	write := func(v wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		p, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: p})
		_ = write(wsMessage{Type: "complete", ID: id})
	}
	unsubscribe := func(id string) {
		subsMu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		subsMu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.runID, s0.ch)
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl wsSubscribe
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.RunID == "" {
				fail(msg.ID, "runId required")
				continue
			}
			subsMu.Lock()
			_, dup := subs[msg.ID]
			subsMu.Unlock()
			if dup {
				fail(msg.ID, "subscription id already in use")
				continue
			}
			run, err := s.Store.GetRun(r.Context(), pl.RunID)
			if err != nil {
				fail(msg.ID, "run not found")
				continue
			}
			ch := s.Broker.Subscribe(run.ID)
			subsMu.Lock()
			subs[msg.ID] = sub{runID: run.ID, ch: ch}
			subsMu.Unlock()
			if cur, err := s.Store.GetRun(r.Context(), run.ID); err == nil {
				run = cur
			}
			first, _ := json.Marshal(SSEEvent{Type: EventStatus, Data: map[string]any{"runId": run.ID, "status": run.Status}})
			_ = write(wsMessage{Type: "next", ID: msg.ID, Payload: first})
			if finished(run.Status) {
				unsubscribe(msg.ID)
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
					if evt.Type == EventStatus && finished(statusOf(evt.Data)) {
						go unsubscribe(id)
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			unsubscribe(msg.ID)
		}
	}

	subsMu.Lock()
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	subsMu.Unlock()
	for _, id := range ids {
		unsubscribe(id)
	}
}
