package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-phone-2fa/internal/responses"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// HookEnvelope is returned to the gateway on call callbacks.
type HookEnvelope struct {
	Status       string `json:"status"`
	ResponseCode string `json:"responseCode,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, responses.Response{Code: code, Message: msg})
}
