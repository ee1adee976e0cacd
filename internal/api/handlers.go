package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aicaptain/internal/store"
)

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz. A failing history database makes the
// dashboard unready; the optimization service status is only reported.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.History.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	out := map[string]any{"status": "ready"}
	if s.Upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		out["upstream"] = s.Upstream.Health(ctx)
	}
	writeJSON(w, http.StatusOK, out)
}

// OpenClientHandler handles POST /v1/clients: one orchestrator per
// dashboard tab, with its own freshly loaded catalog.
func (s *Server) OpenClientHandler(w http.ResponseWriter, r *http.Request) {
	o := s.Pool.Open(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        o.ID(),
		"state":     o.Snapshot(),
		"waypoints": o.Catalog().Len(),
	})
}

// CloseClientHandler handles DELETE /v1/clients/{id}.
func (s *Server) CloseClientHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Pool.Close(chi.URLParam(r, "id")) {
		writeProblem(w, http.StatusNotFound, "Unknown client", "", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WaypointsHandler handles GET /v1/waypoints. ?refresh=true reloads the
// catalog from the service first.
func (s *Server) WaypointsHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.memberOr404(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		o.ReloadCatalog(r.Context())
	}
	c := o.Catalog()
	out := map[string]any{"waypoints": c.List()}
	if start, end, ok := c.DefaultEndpoints(); ok {
		out["defaultStart"], out["defaultEnd"] = start, end
	}
	writeJSON(w, http.StatusOK, out)
}

// OptimizeHandler handles POST /v1/optimize. The body holds the raw form
// fields. It answers 202 with the Loading state once the input validated;
// the outcome arrives on the state endpoints and streams.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.memberOr404(w, r)
	if !ok {
		return
	}
	fields, err := decodeFields(w, r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error(), r.URL.Path)
		return
	}
	st, err := o.Start(r.Context(), fields)
	if err != nil {
		p := submitProblem(err, st, r.URL.Path)
		writeJSON(w, p.Status, p)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// StateHandler handles GET /v1/state and DELETE /v1/state. DELETE
// abandons a pending call or dismisses a result.
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.memberOr404(w, r)
	if !ok {
		return
	}
	if r.Method == http.MethodDelete {
		o.Abandon()
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// RoutesIndexHandler handles GET /v1/routes?cursor=&limit=.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.History.List(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RouteByIDHandler handles GET and DELETE /v1/routes/{id}.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch r.Method {
	case http.MethodGet:
		rec, err := s.History.Get(r.Context(), id)
		if err != nil {
			s.historyProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.History.Delete(r.Context(), id); err != nil {
			s.historyProblem(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) historyProblem(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Route not found", "", r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Route history failed", err.Error(), r.URL.Path)
}
