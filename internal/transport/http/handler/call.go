package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-phone-2fa/internal/application/call"
	"github.com/go-phone-2fa/internal/pkg/phone"
	"github.com/go-phone-2fa/internal/responses"
	"github.com/go-phone-2fa/internal/transport/http/middleware"
)

type VerifyCallRequest struct {
	Reference string `json:"reference"`
}

// HookRequest is the gateway's call notification.
type HookRequest struct {
	Originator string `json:"originator"`
	Receiver   string `json:"receiver"`
}

// CallHandler handles missed-call verification endpoints.
type CallHandler struct {
	svc call.Service
}

func NewCallHandler(svc call.Service) *CallHandler {
	return &CallHandler{svc: svc}
}

func (h *CallHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.svc.Init(r.Context(), req.Mobile)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Verify answers 200 once the call was received and 202 while it is awaited.
func (h *CallHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyCallRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	st, err := h.svc.Complete(r.Context(), req.Reference)
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusOK
	if st.Code == responses.AwaitingCall {
		status = http.StatusAccepted
	}
	writeJSON(w, status, st)
}

// Hook always answers 200 so the gateway never retries on our failures.
func (h *CallHandler) Hook(w http.ResponseWriter, r *http.Request) {
	var req HookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Originator == "" {
		slog.Warn("malformed call hook", "err", err)
		writeJSON(w, http.StatusOK, HookEnvelope{Status: "error"})
		return
	}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.Mobile != phone.Canonical(req.Originator) {
		// Tokens are per registration; the hook may still match a newer request.
		slog.Info("call hook token issued for another mobile", "token_mobile", claims.Mobile, "originator", req.Originator)
	}
	res, err := h.svc.Hook(r.Context(), req.Originator, req.Receiver)
	if err != nil {
		slog.Error("call hook failed", "originator", req.Originator, "receiver", req.Receiver, "err", err)
		writeJSON(w, http.StatusOK, HookEnvelope{Status: "error"})
		return
	}
	writeJSON(w, http.StatusOK, HookEnvelope{Status: res.Status, ResponseCode: res.ResponseCode})
}
