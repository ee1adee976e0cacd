// Package api serves the route planning dashboard: JSON endpoints over the
// orchestrator pool plus SSE and WebSocket state streams.
package api

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"aicaptain/internal/events"
	"aicaptain/internal/orchestrator"
	"aicaptain/internal/session"
	"aicaptain/internal/store"
)

// Upstream reports the optimization service's health; *transport.Client
// satisfies it.
type Upstream interface {
	Health(ctx context.Context) map[string]any
}

// Options tune the HTTP surface.
type Options struct {
	AllowOrigins []string
	RateRPS      float64
	RateBurst    int
	// Debug is echoed by /debug/info; keep secrets out of it.
	Debug map[string]any
}

type Server struct {
	Pool     *orchestrator.Pool
	Upstream Upstream
	Creds    session.Credentials
	History  store.RouteHistory
	Broker   events.Bus
	Log      *zap.Logger
	Opts     Options

	defaultMu sync.Mutex
	defaultID string
}

// clientHeader selects the orchestrator a request acts on. EventSource
// and WebSocket clients pass ?client= instead.
const clientHeader = "X-Client-Id"

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// member resolves the request's orchestrator. Requests without a client id
// share a default member, opened on first use and again after it is closed.
func (s *Server) member(r *http.Request) (*orchestrator.Orchestrator, bool) {
	id := r.Header.Get(clientHeader)
	if id == "" {
		id = r.URL.Query().Get("client")
	}
	if id == "" {
		return s.defaultMember(r.Context()), true
	}
	return s.Pool.Get(id)
}

func (s *Server) defaultMember(ctx context.Context) *orchestrator.Orchestrator {
	s.defaultMu.Lock()
	defer s.defaultMu.Unlock()
	if o, ok := s.Pool.Get(s.defaultID); ok {
		return o
	}
	o := s.Pool.Open(context.WithoutCancel(ctx))
	s.defaultID = o.ID()
	return o
}

func (s *Server) memberOr404(w http.ResponseWriter, r *http.Request) (*orchestrator.Orchestrator, bool) {
	o, ok := s.member(r)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Unknown client", "open a client with POST /v1/clients", r.URL.Path)
	}
	return o, ok
}
