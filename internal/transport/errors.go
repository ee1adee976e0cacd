package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aicaptain/internal/model"
)

// GenericMessage is reported when neither the server nor the transport
// supplied any text.
const GenericMessage = "An unexpected error occurred"

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.Status)
}

// DecodeError is a 2xx response whose body could not be used.
type DecodeError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *DecodeError) Error() string { return "malformed response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// NormalizeError folds any failure of a call into one APIError. Status is
// 500 when no response was received. The message prefers a server supplied
// text, then the transport error text, then GenericMessage.
func NormalizeError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var se *StatusError
	if errors.As(err, &se) {
		out := &model.APIError{Status: se.Status, Details: rawDetails(se.Body)}
		out.Message = firstNonEmpty(serverMessage(se.Body), se.Error())
		return out
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return &model.APIError{
			Status:  http.StatusBadGateway,
			Message: firstNonEmpty(serverMessage(de.Body), de.Error()),
			Details: rawDetails(de.Body),
		}
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &model.APIError{Status: http.StatusInternalServerError, Message: firstNonEmpty(msg, GenericMessage)}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return GenericMessage
}

// serverMessage reads the human readable text of an error body. FastAPI
// style bodies carry it in "detail"; "detail" may also be a list of
// validation issues, which is not a display string.
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, k := range []string{"detail", "message", "error"} {
		var s string
		if raw, ok := doc[k]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// rawDetails forwards the body verbatim when it is JSON and as a JSON
// string otherwise.
func rawDetails(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	b, _ := json.Marshal(string(body))
	return b
}
