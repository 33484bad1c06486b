package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/infrastructure/dynamo"
	"github.com/go-phone-2fa/internal/infrastructure/gateway"
	jwtinfra "github.com/go-phone-2fa/internal/infrastructure/jwt"
	"github.com/go-phone-2fa/internal/infrastructure/sns"
	"github.com/go-phone-2fa/internal/infrastructure/sqlite"
	transporthttp "github.com/go-phone-2fa/internal/transport/http"
	"github.com/joho/godotenv"
)

// Webhook tokens outlive the call wait window by this much.
const hookTokenSlack = 5 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	if n, err := store.CountOTPRequests(ctx); err == nil {
		log.Printf("Verification store ready (%s, %d otp requests)", cfg.StoreDriver, n)
	}

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout())
	deps := &transporthttp.Deps{Store: store, Gateway: gw}

	if cfg.SMSProvider == "sns" {
		client, err := sns.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("sns: %v", err)
		}
		deps.Messenger = sns.NewMessenger(client)
	}

	// Webhook signer (optional; hooks are accepted unsigned without a key).
	if cfg.WebhookSigningKey != "" {
		signer, err := jwtinfra.NewSigner(cfg.WebhookSigningKey, cfg.Call.WaitTime()+hookTokenSlack)
		if err != nil {
			log.Fatalf("webhook signer: %v", err)
		}
		deps.Signer = signer
	} else {
		log.Println("WARN: WEBHOOK_SIGNING_KEY not set, call hooks are not authenticated")
	}
	if cfg.Call.WebhookBaseURL == "" {
		log.Println("WARN: CALL_WEBHOOK_BASE_URL not set, call verification is unavailable")
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + 2*cfg.Gateway.Timeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// openStore opens the configured verification store and runs its migration.
func openStore(ctx context.Context, cfg *config.Config) (domain.VerificationStore, func() error, error) {
	switch cfg.StoreDriver {
	case "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := dynamo.NewVerificationRepo(client, cfg.Database)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	default:
		s, err := sqlite.Open(ctx, cfg.DatabasePath, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}
