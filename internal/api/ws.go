package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aicaptain/internal/events"
)

// WebSocket protocol for /v1/ws?client=:
//
//	client -> server: connection_init, ping, submit {fields}, abandon
//	server -> client: connection_ack, pong, next {type, data}, error {problem}
//
// Every state change and session event is pushed as "next".

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsReadTimeout = 60 * time.Second
	wsPingEvery   = 20 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSHandler handles GET /v1/ws.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.memberOr404(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := s.logger().With(zap.String("client", o.ID()))

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	next := func(evt events.Event) error {
		payload, _ := json.Marshal(evt)
		return write(wsMessage{Type: "next", Payload: payload})
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer wg.Wait()
	defer close(done)

	var subscribed bool
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			if subscribed {
				continue
			}
			subscribed = true
			stateCh := s.Broker.Subscribe(o.ID())
			sessCh := s.Broker.Subscribe(events.TopicSession)
			_ = next(events.Event{Type: events.TypeStateChanged, Data: map[string]any{"state": o.Snapshot()}})
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.Broker.Unsubscribe(o.ID(), stateCh)
				defer s.Broker.Unsubscribe(events.TopicSession, sessCh)
				ticker := time.NewTicker(wsPingEvery)
				defer ticker.Stop()
				for {
					var err error
					select {
					case <-done:
						return
					case evt, ok := <-stateCh:
						if !ok {
							return
						}
						err = next(evt)
					case evt, ok := <-sessCh:
						if !ok {
							return
						}
						err = next(evt)
					case <-ticker.C:
						wmu.Lock()
						err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
						wmu.Unlock()
					}
					if err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong", ID: msg.ID})
		case "submit":
			fields, err := scalarFields(bytes.NewReader(msg.Payload))
			if err != nil {
				p := Problem{Type: "about:blank", Title: "Invalid payload", Status: http.StatusBadRequest, Detail: err.Error()}
				_ = write(problemMessage(msg.ID, p))
				continue
			}
			st, err := o.Start(context.WithoutCancel(r.Context()), fields)
			if err != nil {
				_ = write(problemMessage(msg.ID, submitProblem(err, st, r.URL.Path)))
			}
		case "abandon":
			o.Abandon()
		default:
			// ignore
		}
	}
}

func problemMessage(id string, p Problem) wsMessage {
	payload, _ := json.Marshal(p)
	return wsMessage{Type: "error", ID: id, Payload: payload}
}
