// Package otp implements SMS one-time-code verification.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/pkg/id"
	"github.com/go-phone-2fa/internal/pkg/phone"
	"github.com/go-phone-2fa/internal/responses"
)

// CodeToken is replaced with the generated code in the message template.
const CodeToken = "{code}"

// Messenger checks funds and delivers SMS. Both the gateway client and the
// SNS messenger satisfy it.
type Messenger interface {
	BalanceSufficient(ctx context.Context) (bool, error)
	SendSMS(ctx context.Context, to, text string) (*domain.SMSDispatch, error)
}

// Store is the part of domain.VerificationStore this package uses.
type Store interface {
	InsertOTPRequest(ctx context.Context, r *domain.OTPRequest) error
	FindOTPRequestByID(ctx context.Context, id string) (*domain.OTPRequest, error)
	MarkOTPCompleted(ctx context.Context, id string) error
}

type InitResult struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

type CompleteResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Mobile  string `json:"-"`
}

type Service interface {
	Init(ctx context.Context, mobile string) (*InitResult, error)
	Complete(ctx context.Context, reference, code string) (*CompleteResult, error)
}

type service struct {
	store     Store
	messenger Messenger
	cfg       config.OTP
	alphabet  string
	timeout   time.Duration

	now  func() time.Time
	intN func(n int) int
}

// NewService returns the OTP engine. timeout bounds each messenger round trip.
func NewService(store Store, messenger Messenger, cfg config.OTP, timeout time.Duration) Service {
	return &service{
		store:     store,
		messenger: messenger,
		cfg:       cfg,
		alphabet:  alphabetFor(cfg.Characters),
		timeout:   timeout,
		now:       time.Now,
		intN:      rand.IntN,
	}
}

func (s *service) Init(ctx context.Context, mobile string) (*InitResult, error) {
	mobile = phone.Canonical(mobile)

	ok, err := s.balanceSufficient(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, responses.Fail(responses.LowBalance)
	}

	code := s.generate()
	d, err := s.send(ctx, mobile, render(s.cfg.MessageTemplate, code))
	if err != nil {
		return nil, err
	}
	if !d.Accepted {
		slog.Warn("sms rejected by provider", "mobile", mobile, "status", d.Status, "message", d.Message)
		return nil, responses.Upstream(d.Status, d.Message)
	}

	req := &domain.OTPRequest{
		ID:          id.New(),
		Mobile:      mobile,
		Code:        code,
		ExternalRef: d.ExternalRef,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertOTPRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save otp request: %w", err)
	}
	return &InitResult{
		Code:      responses.Success,
		Message:   fmt.Sprintf("OTP Code has been sent to %s. Persist the reference to database.", mobile),
		Reference: req.ID,
	}, nil
}

func (s *service) Complete(ctx context.Context, reference, code string) (*CompleteResult, error) {
	if !id.Valid(reference) {
		return nil, responses.Fail(responses.InvalidReference)
	}
	if !matchesAlphabet(code, s.alphabet) {
		return nil, responses.Fail(responses.InvalidOTP)
	}

	req, err := s.store.FindOTPRequestByID(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, responses.Fail(responses.UnknownReference)
	}
	if err != nil {
		return nil, fmt.Errorf("load otp request: %w", err)
	}
	if req.Completed {
		return nil, responses.Fail(responses.AlreadyVerified)
	}
	if req.ExpiredAt(s.now(), s.cfg.Validity()) {
		return nil, responses.Fail(responses.OTPExpired)
	}
	if subtle.ConstantTimeCompare([]byte(req.Code), []byte(code)) != 1 {
		return nil, responses.Fail(responses.InvalidOTP)
	}

	if err := s.store.MarkOTPCompleted(ctx, reference); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, responses.Fail(responses.AlreadyVerified)
		}
		return nil, fmt.Errorf("complete otp request: %w", err)
	}
	return &CompleteResult{
		Code:    responses.Success,
		Message: fmt.Sprintf("Mobile number %s has been successfully verified", req.Mobile),
		Mobile:  req.Mobile,
	}, nil
}

func (s *service) generate() string {
	var b strings.Builder
	b.Grow(s.cfg.Length)
	for i := 0; i < s.cfg.Length; i++ {
		b.WriteByte(s.alphabet[s.intN(len(s.alphabet))])
	}
	return b.String()
}

func render(template, code string) string {
	return strings.ReplaceAll(template, CodeToken, code)
}

func (s *service) balanceSufficient(ctx context.Context) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ok, err := s.messenger.BalanceSufficient(ctx)
	if err != nil {
		return false, fmt.Errorf("check balance: %w", err)
	}
	return ok, nil
}

func (s *service) send(ctx context.Context, to, text string) (*domain.SMSDispatch, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	d, err := s.messenger.SendSMS(ctx, to, text)
	if err != nil {
		return nil, fmt.Errorf("send otp: %w", err)
	}
	return d, nil
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
