package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondServiceError maps a service error onto its HTTP status and body.
// Internal failures are logged and reported without their cause.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ce := apperrors.Categorize(err)
	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":     ce.Code,
		"category": ce.Category,
		"status":   ce.StatusCode,
	})

	if ce.StatusCode >= http.StatusInternalServerError && ce.Code != apperrors.CodeUpstreamUnavailable {
		logger.WithError(err).Error("request failed")
		respondError(w, ce.StatusCode, ce.Code, "An internal error occurred", nil)
		return
	}

	logger.Debug(ce.Message)
	if ce.Code == apperrors.CodeTooEarly {
		if secs, ok := ce.Details["remainingSeconds"].(int64); ok {
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
	}
	respondError(w, ce.StatusCode, ce.Code, ce.Message, ce.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperrors.NewInvalidParameterError("body", err.Error())
	}
	return nil
}
