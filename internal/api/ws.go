package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fleetnav/internal/events"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// EventsWSHandler handles /v1/events/ws. Every fleet event is streamed as a
// JSON text frame; ?types=task.dispatched,task.completed narrows the stream.
// The client only needs to answer pings.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	if s.Broker == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Events unavailable", "no event broker configured", r.URL.Path)
		return
	}
	filter := map[string]bool{}
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(events.Topic)
	defer s.Broker.Unsubscribe(events.Topic, ch)

	// Reader: keeps the deadline fresh on pongs and notices the client leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "broker closed"), time.Now().Add(wsWriteWait))
				return
			}
			if len(filter) > 0 && !filter[evt.Type] {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				s.log.Debug("ws write", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
