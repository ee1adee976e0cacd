package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// SessionHandler handles /v1/session. PUT stores the credential used for
// calls to the optimization service, taken from {"token": "..."} or the
// Authorization header. DELETE logs out. GET reports whether a credential
// is present without revealing it.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tok, err := s.Creds.Token(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Credential read failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": tok != ""})
	case http.MethodPut:
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil && err != io.EOF {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		tok := strings.TrimSpace(body.Token)
		if tok == "" {
			tok = bearerToken(r)
		}
		if tok == "" {
			writeProblem(w, http.StatusBadRequest, "Missing token", "provide token in the body or a bearer Authorization header", r.URL.Path)
			return
		}
		if err := s.Creds.SetToken(r.Context(), tok); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Credential write failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.Creds.Clear(r.Context()); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Credential clear failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
