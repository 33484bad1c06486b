package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/responses"
)

// statusFor maps an error to its HTTP status by domain kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err as {code, message}. Catalog errors keep their own code
// and message; anything else gets the status as code and a generic message so
// internal details stay in the logs.
func httpError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	var re *responses.Error
	if errors.As(err, &re) {
		if status >= http.StatusInternalServerError {
			slog.Warn("request failed", "code", re.Code, "err", err)
		}
		writeError(w, status, re.Code, re.Message)
		return
	}

	slog.Error("request failed", "status", status, "err", err)
	msg := http.StatusText(status)
	if status == http.StatusBadGateway {
		msg = "SMS gateway unavailable"
	}
	writeError(w, status, strconv.Itoa(status), msg)
}
