package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roach88/prdash/internal/dashboard"
	"github.com/roach88/prdash/internal/github"
)

// Error codes carried in the "code" field of error responses.
const (
	CodeMissingCredential = "MISSING_CREDENTIAL"
	CodeUpstream          = "UPSTREAM_ERROR"
	CodeEmptyResult       = "EMPTY_RESULT"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInternal          = "INTERNAL_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error errorBody `json:"error"`
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: errorBody{Code: code, Message: message}}
}

// classify maps a service error onto a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, github.ErrMissingCredential):
		return http.StatusServiceUnavailable, CodeMissingCredential
	case errors.Is(err, dashboard.ErrEmptyResult):
		return http.StatusNotFound, CodeEmptyResult
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeUpstream
	case github.IsTransport(err), github.IsProtocol(err):
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(log *slog.Logger, w http.ResponseWriter, status int, code, message string) {
	writeJSON(log, w, status, newErrorResponse(code, message))
}

func writeServiceError(log *slog.Logger, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("code", code), slog.String("error", err.Error()))
	} else {
		log.Warn("request failed", slog.String("code", code), slog.String("error", err.Error()))
	}
	writeError(log, w, status, code, dashboard.Describe(err))
}
