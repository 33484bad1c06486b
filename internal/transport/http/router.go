package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-phone-2fa/internal/application/call"
	"github.com/go-phone-2fa/internal/application/otp"
	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/transport/http/handler"
	appmiddleware "github.com/go-phone-2fa/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var (
		signer call.TokenSigner
		hookMw = appmiddleware.HookToken(nil, call.Purpose)
	)
	if deps.Signer != nil {
		signer = deps.Signer
		hookMw = appmiddleware.HookToken(deps.Signer, call.Purpose)
	}

	messenger := deps.Messenger
	if messenger == nil {
		messenger = deps.Gateway
	}

	// 5 requests/second, burst of 10, on endpoints that cost an SMS or a webhook.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(deps.Store, messenger, cfg.OTP, cfg.Gateway.Timeout())
	callSvc := call.NewService(deps.Store, deps.Gateway, signer, cfg.Call, cfg.Gateway.Timeout())

	healthH := handler.NewHealthHandler(deps.Store)
	otpH := handler.NewOTPHandler(otpSvc)
	callH := handler.NewCallHandler(callSvc)

	r.Get("/v1/health-check/{action}", healthH.Check)
	r.Post("/v1/health-check/{action}", healthH.Check)

	r.With(sensitiveRL.Limit).Post("/v1/otp", otpH.Init)
	r.Post("/v1/otp/verify", otpH.Verify)

	r.With(sensitiveRL.Limit).Post("/v1/calls", callH.Init)
	r.Post("/v1/calls/verify", callH.Verify)

	// Gateway callback; the path is configurable because it is part of the
	// URL registered with the gateway.
	r.With(hookMw).Post(cfg.Call.WebhookPath, callH.Hook)

	return r
}
