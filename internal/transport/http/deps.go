package http

import (
	"github.com/go-phone-2fa/internal/application/call"
	"github.com/go-phone-2fa/internal/application/otp"
	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/transport/http/middleware"
)

// Gateway is what the router needs from the SMS/voice cloud client.
type Gateway interface {
	otp.Messenger
	call.Gateway
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Store domain.VerificationStore
	// Gateway registers call webhooks and reports the hosted number.
	Gateway Gateway
	// Messenger delivers OTP messages. Nil falls back to Gateway.
	Messenger otp.Messenger
	// Signer signs and verifies webhook tokens. Nil disables token checks.
	Signer interface {
		call.TokenSigner
		middleware.TokenVerifier
	}
}
