// Package main runs a demo client: it submits a few tasks and tails the
// fleet event stream until they complete.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	TS   time.Time      `json:"ts"`
	Data map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	body := []byte(`{"tasks":[{"source":0,"destination":15},{"source":15,"destination":0},{"source":3,"destination":12}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "operator")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var created struct {
		IDs []string `json:"ids"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	_ = resp.Body.Close()
	log.Printf("queued %d tasks (HTTP %d)", len(created.IDs), resp.StatusCode)

	pending := map[string]bool{}
	for _, id := range created.IDs {
		pending[id] = true
	}
	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for len(pending) > 0 {
		var e event
		if err := c.ReadJSON(&e); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("WS <- %s %v", e.Type, e.Data)
		if e.Type == "task.completed" {
			if id, ok := e.Data["taskId"].(string); ok {
				delete(pending, id)
			}
		}
	}
	log.Print("all tasks completed")
}
