// Package call implements missed-call verification: the user calls a hosted
// number, the gateway reports the call through a webhook and the client polls
// for the result.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/pkg/id"
	"github.com/go-phone-2fa/internal/pkg/phone"
	"github.com/go-phone-2fa/internal/responses"
)

// Purpose is the webhook purpose registered with the gateway.
const Purpose = "CALL"

// Hook outcomes reported back to the gateway.
const (
	HookDone    = "done"
	HookIgnored = "ignored"
)

type Gateway interface {
	SetDynamicWebhook(ctx context.Context, url, originator, purpose string, wait time.Duration) error
	HostedNumber(ctx context.Context) (*domain.HostedNumber, error)
}

// TokenSigner signs the token appended to the webhook URL.
type TokenSigner interface {
	Sign(mobile, purpose string) (string, error)
}

// Store is the part of domain.VerificationStore this package uses.
type Store interface {
	InsertCallRequest(ctx context.Context, r *domain.CallRequest) error
	FindCallRequestByMobile(ctx context.Context, mobile string) (*domain.CallRequest, error)
	FindCallRequestByID(ctx context.Context, id string) (*domain.CallRequest, error)
	MarkCallReceived(ctx context.Context, mobile string) error
	MarkCallCompleted(ctx context.Context, id string) error
}

type InitResult struct {
	Code      string `json:"code"`
	MSISDN    string `json:"msisdn"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

type HookResult struct {
	Status       string `json:"status"`
	ResponseCode string `json:"responseCode"`
}

// Status is the answer to a completion poll. Code is "200" once verified and
// CE303 while the call is still awaited.
type Status struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	State   domain.CallState `json:"state"`
}

type Service interface {
	Init(ctx context.Context, mobile string) (*InitResult, error)
	Hook(ctx context.Context, originator, receiver string) (*HookResult, error)
	Complete(ctx context.Context, reference string) (*Status, error)
}

type service struct {
	store   Store
	gateway Gateway
	signer  TokenSigner
	cfg     config.Call
	hosted  []string
	timeout time.Duration
	now     func() time.Time
}

// NewService returns the call engine. signer may be nil, in which case the
// webhook URL carries no token.
func NewService(store Store, gateway Gateway, signer TokenSigner, cfg config.Call, timeout time.Duration) Service {
	hosted := make([]string, 0, len(cfg.HostedNumbers))
	for _, n := range cfg.HostedNumbers {
		hosted = append(hosted, phone.Canonical(n))
	}
	return &service{
		store:   store,
		gateway: gateway,
		signer:  signer,
		cfg:     cfg,
		hosted:  hosted,
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *service) Init(ctx context.Context, mobile string) (*InitResult, error) {
	mobile = phone.Canonical(mobile)

	hook, err := s.webhookURL(mobile)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.withTimeout(ctx)
	err = s.gateway.SetDynamicWebhook(gctx, hook, mobile, Purpose, s.cfg.WaitTime())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("register call webhook: %w", err)
	}

	req := &domain.CallRequest{
		ID:        id.New(),
		Mobile:    mobile,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertCallRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save call request: %w", err)
	}

	gctx, cancel = s.withTimeout(ctx)
	defer cancel()
	num, err := s.gateway.HostedNumber(gctx)
	if err != nil {
		return nil, fmt.Errorf("fetch hosted number: %w", err)
	}
	return &InitResult{
		Code:      responses.Success,
		MSISDN:    num.MSISDN,
		Message:   fmt.Sprintf("%s is awaiting call from %s", num.MSISDN, mobile),
		Reference: req.ID,
	}, nil
}

func (s *service) Hook(ctx context.Context, originator, receiver string) (*HookResult, error) {
	originator = phone.Canonical(originator)
	receiver = phone.Canonical(receiver)

	if len(s.hosted) > 0 && !slices.Contains(s.hosted, receiver) {
		slog.Warn("call hook for unknown hosted number", "originator", originator, "receiver", receiver)
		return ignored(), nil
	}

	if _, err := s.store.FindCallRequestByMobile(ctx, originator); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Info("call hook from unknown caller", "originator", originator, "receiver", receiver)
			return ignored(), nil
		}
		return nil, fmt.Errorf("load call request: %w", err)
	}

	if err := s.store.MarkCallReceived(ctx, originator); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ignored(), nil
		}
		return nil, fmt.Errorf("mark call received: %w", err)
	}
	slog.Info("call received", "originator", originator, "receiver", receiver)
	return &HookResult{Status: HookDone, ResponseCode: responses.Success}, nil
}

func (s *service) Complete(ctx context.Context, reference string) (*Status, error) {
	if !id.Valid(reference) {
		return nil, responses.Fail(responses.InvalidReference)
	}

	req, err := s.store.FindCallRequestByID(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, responses.Fail(responses.UnknownReference)
	}
	if err != nil {
		return nil, fmt.Errorf("load call request: %w", err)
	}

	if !req.CallReceived {
		return &Status{
			Code:    responses.AwaitingCall,
			Message: fmt.Sprintf("Awaiting call from %s", req.Mobile),
			State:   domain.CallPending,
		}, nil
	}
	if err := s.store.MarkCallCompleted(ctx, reference); err != nil {
		return nil, fmt.Errorf("complete call request: %w", err)
	}
	return &Status{
		Code:    responses.Success,
		Message: "Your mobile number has been successfully verified",
		State:   domain.CallVerified,
	}, nil
}

// webhookURL is the public base URL plus the hook path, with a signed token
// when a signer is configured.
func (s *service) webhookURL(mobile string) (string, error) {
	if s.cfg.WebhookBaseURL == "" {
		return "", responses.Fail(responses.WebhookMissing)
	}
	u, err := url.Parse(strings.TrimRight(s.cfg.WebhookBaseURL, "/") + s.cfg.WebhookPath)
	if err != nil {
		slog.Error("invalid webhook base url", "url", s.cfg.WebhookBaseURL, "err", err)
		return "", responses.Fail(responses.WebhookMissing)
	}
	if s.signer != nil {
		token, err := s.signer.Sign(mobile, Purpose)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ignored() *HookResult {
	return &HookResult{Status: HookIgnored, ResponseCode: responses.UnknownCaller}
}
