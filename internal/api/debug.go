package api

import (
	"net/http"
	"time"

	"aicaptain/internal/buildinfo"
)

// DebugJSON handles GET /debug/info.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":   buildinfo.Info(),
		"time":    time.Now().UTC().Format(time.RFC3339),
		"clients": s.Pool.Len(),
		"config":  s.Opts.Debug,
	}
	writeJSON(w, http.StatusOK, info)
}
