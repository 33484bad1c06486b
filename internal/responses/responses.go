// Package responses is the fixed catalog of user-facing result codes.
package responses

import (
	"fmt"

	"github.com/go-phone-2fa/internal/domain"
)

// Success is the code attached to every successful result.
const Success = "200"

// Catalog codes.
const (
	LowBalance       = "CE1804"
	AlreadyVerified  = "CE201"
	OTPExpired       = "CE202"
	InvalidOTP       = "CE203"
	InvalidReference = "CE204"
	UnknownReference = "CE205"
	UnknownCaller    = "CE301"
	WebhookMissing   = "CE302"
	AwaitingCall     = "CE303"
)

// Response is a {code, message} pair as returned to callers.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type entry struct {
	message string
	kind    error
}

var catalog = map[string]entry{
	LowBalance:       {"Your Cecula Balance is low. Kindly top up your credit.", domain.ErrUpstream},
	AlreadyVerified:  {"Your mobile number has already been verified", domain.ErrConflict},
	OTPExpired:       {"Your OTP has expired", domain.ErrExpired},
	InvalidOTP:       {"Invalid OTP", domain.ErrMismatch},
	InvalidReference: {"You have submitted an invalid tracking ID", domain.ErrBadRequest},
	UnknownReference: {"Tracking ID does not reference any authentication request", domain.ErrNotFound},
	UnknownCaller:    {"Unknown Caller", domain.ErrNotFound},
	WebhookMissing:   {"Webhook File not found.", domain.ErrUnavailable},
	AwaitingCall:     {"Awaiting call", nil},
}

// Get returns the catalog entry for code. An unknown code is a programming
// error and panics.
func Get(code string) Response {
	e, ok := catalog[code]
	if !ok {
		panic(fmt.Sprintf("responses: unknown code %q", code))
	}
	return Response{Code: code, Message: e.message}
}

// Error is a catalog response used as an error value. It unwraps to the
// domain sentinel for its kind so callers can branch with errors.Is.
type Error struct {
	Response
	kind error
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func (e *Error) Unwrap() error { return e.kind }

// Fail builds the error for a catalog code. It panics on unknown codes and on
// codes that do not describe a failure.
func Fail(code string) *Error {
	r := Get(code)
	kind := catalog[code].kind
	if kind == nil {
		panic(fmt.Sprintf("responses: code %q is not a failure", code))
	}
	return &Error{Response: r, kind: kind}
}

// Upstream wraps a provider's own status and message, passed through verbatim.
func Upstream(code, message string) *Error {
	return &Error{Response: Response{Code: code, Message: message}, kind: domain.ErrUpstream}
}
