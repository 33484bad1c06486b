package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RecordCounter reports how many OTP requests the store holds.
type RecordCounter interface {
	CountOTPRequests(ctx context.Context) (int, error)
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	counter RecordCounter
}

func NewHealthHandler(counter RecordCounter) *HealthHandler {
	return &HealthHandler{counter: counter}
}

// Check serves /health-check/{action}: "ping" always answers, "ready" also
// round-trips the store.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		if h.counter == nil {
			writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
			return
		}
		n, err := h.counter.CountOTPRequests(r.Context())
		if err != nil {
			slog.Error("readiness check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, strconv.Itoa(http.StatusServiceUnavailable), "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready", Count: &n})
	default:
		writeError(w, http.StatusBadRequest, strconv.Itoa(http.StatusBadRequest), "unknown action")
	}
}
