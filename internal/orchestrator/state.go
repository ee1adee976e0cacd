package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"

	"aicaptain/internal/model"
)

// Phase is the lifecycle position of an Orchestrator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseLoading
	PhaseSuccess
	PhaseError
)

var phaseNames = [...]string{"idle", "validating", "loading", "success", "error"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// transitions lists every legal edge. Anything else is a programming error
// and is refused with ErrIllegalTransition.
var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseValidating},
	PhaseValidating: {PhaseLoading, PhaseError},
	PhaseLoading:    {PhaseSuccess, PhaseError, PhaseIdle},
	PhaseSuccess:    {PhaseValidating, PhaseIdle},
	PhaseError:      {PhaseValidating, PhaseIdle},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

var (
	// ErrSubmissionInFlight rejects a submission while a call is outstanding.
	ErrSubmissionInFlight = errors.New("optimization already in progress")
	// ErrIllegalTransition reports an edge missing from the transition table.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrAbandoned is returned to a submitter whose result arrived after
	// Abandon; the result was not applied.
	ErrAbandoned = errors.New("optimization abandoned")
)

// ErrorKind tells the presentation layer how to render a failure: inline
// next to a field, or as a dismissible banner.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindServer       ErrorKind = "server"
	KindUnauthorized ErrorKind = "unauthorized"
)

// Failure is the display form of the Error phase.
type Failure struct {
	Kind    ErrorKind       `json:"kind"`
	Message string          `json:"message"`
	Field   string          `json:"field,omitempty"`
	Status  int             `json:"status,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Inline reports whether the failure belongs next to a form field.
func (f *Failure) Inline() bool { return f != nil && f.Kind == KindInvalidInput }

func invalidInput(ve *model.ValidationError) *Failure {
	return &Failure{Kind: KindInvalidInput, Field: ve.Field, Message: ve.Error()}
}

func fromAPIError(e *model.APIError) *Failure {
	kind := KindServer
	if e.Unauthorized() {
		kind = KindUnauthorized
	}
	return &Failure{Kind: kind, Message: e.Message, Status: e.Status, Details: e.Details}
}

// State is an immutable snapshot of an Orchestrator.
type State struct {
	ID         string                `json:"id"`
	Phase      Phase                 `json:"phase"`
	Generation uint64                `json:"generation"`
	Route      *model.OptimizedRoute `json:"route,omitempty"`
	Error      *Failure              `json:"error,omitempty"`
}
