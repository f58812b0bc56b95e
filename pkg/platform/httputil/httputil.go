// Package httputil centralizes JSON response writing so every handler emits
// the same envelopes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "terrier/pkg/domain-errors"
)

// statusByCode maps domain error codes to HTTP statuses. Unknown codes fall
// back to 500.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:   http.StatusBadRequest,
	dErrors.CodeInvalidInput: http.StatusBadRequest,
	dErrors.CodeValidation:   http.StatusUnprocessableEntity,

	dErrors.CodeUnauthorized: http.StatusUnauthorized,
	dErrors.CodeForbidden:    http.StatusForbidden,

	dErrors.CodeNotFound:               http.StatusNotFound,
	dErrors.CodeConflict:               http.StatusConflict,
	dErrors.CodeInvalidState:           http.StatusConflict,
	dErrors.CodeDuplicateApproval:      http.StatusConflict,
	dErrors.CodeSelfApproval:           http.StatusForbidden,
	dErrors.CodeDuplicateDispute:       http.StatusConflict,
	dErrors.CodeConcurrentModification: http.StatusConflict,
	dErrors.CodePropertyFrozen:         http.StatusLocked,

	dErrors.CodeLedgerUnavailable: http.StatusServiceUnavailable,
	dErrors.CodeLedgerTimeout:     http.StatusGatewayTimeout,

	dErrors.CodeInvariantViolation: http.StatusInternalServerError,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

type errorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into the JSON error envelope. Internal
// errors omit the description so implementation detail never leaks to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	env := errorEnvelope{Error: string(code)}
	if status < http.StatusInternalServerError {
		env.Description = dErrors.MessageOf(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
