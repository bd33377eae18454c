// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vzcourier/vzcourier-backend/internal/shared"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ErrorWriter maps domain errors to HTTP responses.
type ErrorWriter struct {
	Logger *slog.Logger
	// Debug exposes internal error detail; enabled in development only.
	Debug bool
}

// StatusFor returns the status code for a domain error.
func StatusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNoValidItems):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err using the status derived from its class.
func (e ErrorWriter) Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := ErrorResponse{Message: shared.UserSafeMessage(err), Errors: shared.Details(err)}
	if status == http.StatusRequestEntityTooLarge {
		body.Message = "File too large"
	}
	if status == http.StatusInternalServerError {
		if e.Logger != nil {
			e.Logger.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		body.Message = "Something went wrong!"
		if e.Debug {
			body.Error = err.Error()
		}
	}
	JSON(w, status, body)
}

// Message writes a plain {message} body.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Message: message})
}
