package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/service"
)

// Error codes in response bodies.
const (
	codeInvalidInput       = "INVALID_INPUT"
	codeConflict           = "CONFLICT"
	codeUnauthorized       = "UNAUTHORIZED"
	codeNotFound           = "NOT_FOUND"
	codeGone               = "GONE"
	codeRateLimited        = "RATE_LIMITED"
	codeInternal           = "INTERNAL_ERROR"
	codeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("http: failed to encode response: %v", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps a service error onto a status code and a JSON body.
//
// NotFound and Forbidden produce byte-identical 404 responses so callers
// cannot tell another user's file from a missing one.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		switch {
		case errors.Is(err, context.Canceled):
			// The client went away; nobody reads this response.
			logger.Debug("http: %s %s cancelled", r.Method, r.URL.Path)
			return
		case errors.Is(err, context.DeadlineExceeded):
			writeErrorCode(w, http.StatusServiceUnavailable, codeServiceUnavailable, "request timed out")
			return
		}
		logger.Error("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	switch svcErr.Kind {
	case service.KindInvalidInput:
		writeErrorCode(w, http.StatusBadRequest, codeInvalidInput, svcErr.Message)
	case service.KindDuplicateUsername, service.KindDuplicateEmail, service.KindDuplicateFilename:
		writeErrorCode(w, http.StatusConflict, codeConflict, svcErr.Message)
	case service.KindInvalidCredentials:
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid username or password")
	case service.KindNotFound, service.KindForbidden, service.KindInvalidToken:
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "not found")
	case service.KindExpired, service.KindFileNoLongerShareable:
		writeErrorCode(w, http.StatusGone, codeGone, "share link is no longer valid")
	case service.KindRateLimited:
		w.Header().Set("Retry-After", "60")
		writeErrorCode(w, http.StatusTooManyRequests, codeRateLimited, svcErr.Message)
	default:
		logger.Error("http: %s %s: %v", r.Method, r.URL.Path, err)
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
