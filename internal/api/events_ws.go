package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"poigraph/internal/events"
	"poigraph/internal/metrics"
	"poigraph/internal/model"
)

const (
	wsPingEvery = 20 * time.Second
	wsReadWait  = 60 * time.Second
	wsWriteWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// EventsWSHandler streams rebuild events as JSON text frames. The optional
// category query parameter narrows the stream to one category.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category != events.All && !model.ValidCategoryName(category) {
		writeProblem(w, r, problemInvalidCategory, category)
		return
	}

	// subscribe before the handshake completes so no event is missed
	ch := s.Broker.Subscribe(category)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Broker.Unsubscribe(category, ch)
		return
	}
	defer func() { _ = conn.Close() }()
	defer s.Broker.Unsubscribe(category, ch)
	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	// the client only sends control frames; reading detects the close
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsReadWait)); return nil })
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
