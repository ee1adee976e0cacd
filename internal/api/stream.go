package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"aicaptain/internal/events"
)

const heartbeatEvery = 15 * time.Second

// StreamHandler handles GET /v1/events/stream?client=: server-sent events
// carrying the client's state changes and process-wide session events.
// The current state is sent first.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.memberOr404(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}

	stateCh := s.Broker.Subscribe(o.ID())
	defer s.Broker.Unsubscribe(o.ID(), stateCh)
	sessCh := s.Broker.Subscribe(events.TopicSession)
	defer s.Broker.Unsubscribe(events.TopicSession, sessCh)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, events.Event{Type: events.TypeStateChanged, Data: map[string]any{"state": o.Snapshot()}})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-stateCh:
			if !ok {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
		case evt, ok := <-sessCh:
			if !ok {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"client\":%q,\"ts\":%q}\n\n", o.ID(), time.Now().UTC().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt events.Event) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
}
