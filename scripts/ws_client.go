// Package main submits a demo async run and follows its progress over
// the WebSocket endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type point struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand float64 `json:"demand"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// 400 points around four villages
	rng := rand.New(rand.NewSource(1))
	var pts []point
	for i := 0; i < 400; i++ {
		cx, cy := float64(i%2)*2000, float64((i/2)%2)*2000
		pts = append(pts, point{X: cx + rng.NormFloat64()*150, Y: cy + rng.NormFloat64()*150, Demand: 1 + rng.Float64()})
	}
	body, _ := json.Marshal(map[string]any{"points": pts, "capacity": 40, "async": true, "maxDistance": 300})
	resp, err := http.Post(base+"/v1/optimize", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var run struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	if run.ID == "" {
		log.Fatalf("no run id (status %d)", resp.StatusCode)
	}
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	_ = c.WriteJSON(wsMessage{Type: "connection_init"})
	payload, _ := json.Marshal(map[string]string{"runId": run.ID})
	_ = c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload})

	_ = c.SetReadDeadline(time.Now().Add(10 * time.Minute))
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatal(err)
		}
		switch msg.Type {
		case "next":
			log.Printf("%s", msg.Payload)
		case "error":
			log.Fatalf("error: %s", msg.Payload)
		case "complete":
			log.Printf("done: %s/v1/runs/%s/report", base, run.ID)
			return
		}
	}
}
