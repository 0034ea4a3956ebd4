package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"practice-ledger/internal/domain"
	"practice-ledger/internal/logger"
)

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Available string `json:"available,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Unknown errors are
// logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), RequestID: logger.RequestID(r.Context())}
	status := http.StatusInternalServerError

	var (
		verr *domain.ValidationError
		cerr *domain.InsufficientCreditError
		perr *domain.ProviderError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Field = verr.Field
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cerr):
		status = http.StatusUnprocessableEntity
		resp.Available = cerr.Available.StringFixed(2)
	case errors.Is(err, domain.ErrWebhookAuth):
		status = http.StatusUnauthorized
	case errors.As(err, &perr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "malformed request: %v", err)
	}
	return nil
}
