// Package main runs a demo WebSocket client for rebuild events.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type rebuildEvent struct {
	Type       string    `json:"type"`
	Category   string    `json:"category"`
	Generation string    `json:"generation"`
	Clusters   int       `json:"clusters"`
	Edges      int       `json:"edges"`
	At         time.Time `json:"at"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	category := "Museum"
	if len(os.Args) > 1 {
		category = os.Args[1]
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the rebuild event is not missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws", RawQuery: url.Values{"category": {category}}.Encode()}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt rebuildEvent
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			b, _ := json.Marshal(evt)
			log.Printf("WS <- %s", b)
		}
	}()

	// Trigger a rebuild
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/admin/rebuild?category="+url.QueryEscape(category), nil)
	if tok := os.Getenv("ADMIN_TOKEN"); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("rebuild: %s", resp.Status)

	// Wait briefly to receive the event
	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
