package web

// errors.go turns errors into JSON responses. The technical error is
// logged with the request id; the client gets the coded message from
// core.MapError.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/stockbook/internal/core"
	"github.com/JonMunkholm/stockbook/internal/logging"
	"github.com/JonMunkholm/stockbook/internal/tabular"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errBadBody     = errors.New("invalid request body")
)

// ErrorResponse is the body of every error response. Session is set when
// the failing call still produced a session snapshot, e.g. a failed lookup.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Action  string            `json:"action,omitempty"`
	Code    string            `json:"code"`
	Session *core.SessionView `json:"session,omitempty"`
}

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrUnknownProfile):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSessionInFlight),
		errors.Is(err, core.ErrSessionBusy),
		errors.Is(err, core.ErrSessionCommitted),
		errors.Is(err, core.ErrResolutionLocked),
		errors.Is(err, core.ErrUnresolved),
		errors.Is(err, core.ErrClassificationIncomplete),
		errors.Is(err, core.ErrNothingToReview),
		errors.Is(err, core.ErrNoIdenticalPolicy):
		return http.StatusConflict
	case errors.Is(err, core.ErrValidationFailed),
		errors.Is(err, core.ErrNoRecords),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, tabular.ErrNoHeader):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tabular.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tabular.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrInvalidAction),
		errors.Is(err, errNoFile),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrLookupFailed),
		errors.Is(err, core.ErrTooManyCommits):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	respondSessionError(w, r, err, status, nil)
}

func respondSessionError(w http.ResponseWriter, r *http.Request, err error, status int, view *core.SessionView) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Session: view,
	})
}
