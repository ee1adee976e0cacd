package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aicaptain/internal/metrics"
)

// Handler builds the dashboard router.
func (s *Server) Handler() http.Handler {
	metrics.RegisterDefault()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logMiddleware)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/debug/info", s.DebugJSON)

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(s.Opts.RateRPS, s.Opts.RateBurst))

		r.Post("/clients", s.OpenClientHandler)
		r.Delete("/clients/{id}", s.CloseClientHandler)

		r.Get("/waypoints", s.WaypointsHandler)
		r.Post("/optimize", s.OptimizeHandler)
		r.Get("/state", s.StateHandler)
		r.Delete("/state", s.StateHandler)

		r.Get("/routes", s.RoutesIndexHandler)
		r.Get("/routes/{id}", s.RouteByIDHandler)
		r.Delete("/routes/{id}", s.RouteByIDHandler)

		r.Get("/events/stream", s.StreamHandler)
		r.Get("/ws", s.WSHandler)

		r.Get("/session", s.SessionHandler)
		r.Put("/session", s.SessionHandler)
		r.Delete("/session", s.SessionHandler)
	})

	return handlers.CORS(
		handlers.AllowedOrigins(s.Opts.AllowOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", clientHeader}),
	)(r)
}
