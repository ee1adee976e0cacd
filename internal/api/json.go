package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"aicaptain/internal/model"
	"aicaptain/internal/orchestrator"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Field and Reason are set for validation failures.
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	// State is the orchestrator snapshot after the failure, when there is one.
	State *orchestrator.State `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// submitProblem maps an orchestrator submission error to a problem body.
func submitProblem(err error, st orchestrator.State, instance string) Problem {
	p := Problem{Type: "about:blank", Instance: instance, Detail: err.Error(), State: &st}
	var ve *model.ValidationError
	var apiErr *model.APIError
	switch {
	case errors.As(err, &ve):
		p.Status, p.Title = http.StatusUnprocessableEntity, "Invalid optimization request"
		p.Field, p.Reason = ve.Field, ve.Reason
	case errors.Is(err, orchestrator.ErrSubmissionInFlight):
		p.Status, p.Title = http.StatusConflict, "Optimization in progress"
	case errors.As(err, &apiErr):
		p.Status, p.Title, p.Detail = http.StatusBadGateway, "Optimization service error", apiErr.Message
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Optimization failed"
	}
	return p
}
