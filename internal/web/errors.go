package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as the user-facing message from core.MapError.
// The HTTP status comes from the sentinel the error wraps.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error    string             `json:"error"`
	Message  string             `json:"message"`
	Action   string             `json:"action,omitempty"`
	Code     string             `json:"code"`
	Rejected []core.RejectedRow `json:"rejected,omitempty"` // Sample when validation gave up
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownDocType), errors.Is(err, core.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNoPendingConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrNoHistory):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrFormat),
		errors.Is(err, core.ErrEncoding),
		errors.Is(err, core.ErrTooManyRows),
		errors.Is(err, core.ErrDuplicateColumn),
		errors.Is(err, core.ErrMissingRequiredColumn),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrTooManyErrors):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message with the status
// statusFor picks.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}

	var tooMany *core.TooManyErrorsError
	if errors.As(err, &tooMany) {
		resp.Rejected = tooMany.Sample
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, resp)
}
