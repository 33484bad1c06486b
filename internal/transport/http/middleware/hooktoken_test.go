package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtinfra "github.com/go-phone-2fa/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *jwtinfra.Signer {
	t.Helper()
	s, err := jwtinfra.NewSigner("test-key", time.Minute)
	require.NoError(t, err)
	return s
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestHookToken_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook", nil)
	rr := httptest.NewRecorder()
	HookToken(newTestSigner(t), "CALL")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHookToken_Bad(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook?token=not-a-real-token", nil)
	rr := httptest.NewRecorder()
	HookToken(newTestSigner(t), "CALL")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHookToken_WrongKey(t *testing.T) {
	other, err := jwtinfra.NewSigner("other-key", time.Minute)
	require.NoError(t, err)
	tok, err := other.Sign("+14155552671", "CALL")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook?token="+tok, nil)
	rr := httptest.NewRecorder()
	HookToken(newTestSigner(t), "CALL")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHookToken_Valid_InjectsClaims(t *testing.T) {
	s := newTestSigner(t)
	tok, err := s.Sign("+14155552671", "CALL")
	require.NoError(t, err)

	var got *jwtinfra.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook?token="+tok, nil)
	rr := httptest.NewRecorder()
	HookToken(s, "CALL")(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, "+14155552671", got.Mobile)
}

func TestHookToken_NilVerifierPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook", nil)
	rr := httptest.NewRecorder()
	HookToken(nil, "CALL")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHookToken_WrongPurpose(t *testing.T) {
	s := newTestSigner(t)
	tok, err := s.Sign("+14155552671", "SMS")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/calls/hook?token="+tok, nil)
	rr := httptest.NewRecorder()
	HookToken(s, "CALL")(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "another purpose")
}
