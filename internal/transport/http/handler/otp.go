package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-phone-2fa/internal/application/otp"
	"github.com/go-phone-2fa/internal/pkg/validate"
)

type InitRequest struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
}

// VerifyOTPRequest carries no validate tags: the engine's ordered checks
// answer malformed references and codes with their catalog codes.
type VerifyOTPRequest struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
}

// OTPHandler handles SMS one-time-code endpoints.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler {
	return &OTPHandler{svc: svc}
}

func (h *OTPHandler) Init(w http.ResponseWriter, r *http.Request) {
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

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.svc.Complete(r.Context(), req.Reference, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags,
// answering 400 itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, strconv.Itoa(http.StatusBadRequest), "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, strconv.Itoa(http.StatusBadRequest), err.Error())
		return false
	}
	return true
}
