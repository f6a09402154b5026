// Package httputil centralizes JSON encoding and domain-error translation for
// HTTP handlers so transports stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "callwatch/pkg/domain-errors"
)

// errorResponse is the wire shape for all error payloads.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeInvalidInput: http.StatusBadRequest,
	dErrors.CodeBadRequest:   http.StatusBadRequest,
	dErrors.CodeNotFound:     http.StatusNotFound,
	dErrors.CodeAppendOnly:   http.StatusConflict,
	dErrors.CodeUnavailable:  http.StatusServiceUnavailable,
	dErrors.CodeInternal:     http.StatusInternalServerError,
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to an HTTP status and JSON body. Internal
// errors omit the description so storage details never reach clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.Description = de.Description
		}
	}
	WriteJSON(w, status, resp)
}

// Decode parses a JSON request body into T, returning a coded bad-request
// error on malformed input.
func Decode[T any](r *http.Request) (T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, dErrors.Wrap(dErrors.CodeBadRequest, "malformed request body", err)
	}
	return req, nil
}
