package otp

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-phone-2fa/internal/config"
	"github.com/go-phone-2fa/internal/domain"
	"github.com/go-phone-2fa/internal/infrastructure/sqlite"
	"github.com/go-phone-2fa/internal/pkg/id"
	"github.com/go-phone-2fa/internal/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockMessenger struct{ mock.Mock }

func (m *mockMessenger) BalanceSufficient(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
func (m *mockMessenger) SendSMS(ctx context.Context, to, text string) (*domain.SMSDispatch, error) {
	args := m.Called(ctx, to, text)
	if d, _ := args.Get(0).(*domain.SMSDispatch); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

// memStore keeps records in memory with the same compare-and-set rules as the
// real stores.
type memStore struct {
	mu   sync.Mutex
	reqs map[string]domain.OTPRequest
}

func newMemStore() *memStore { return &memStore{reqs: map[string]domain.OTPRequest{}} }

func (m *memStore) InsertOTPRequest(_ context.Context, r *domain.OTPRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[r.ID] = *r
	return nil
}
func (m *memStore) FindOTPRequestByID(_ context.Context, id string) (*domain.OTPRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}
func (m *memStore) MarkOTPCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reqs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Completed {
		return domain.ErrConflict
	}
	r.Completed = true
	m.reqs[id] = r
	return nil
}

// untouchableStore fails the test on any access.
type untouchableStore struct{ t *testing.T }

func (u untouchableStore) InsertOTPRequest(context.Context, *domain.OTPRequest) error {
	u.t.Fatal("store accessed")
	return nil
}
func (u untouchableStore) FindOTPRequestByID(context.Context, string) (*domain.OTPRequest, error) {
	u.t.Fatal("store accessed")
	return nil, nil
}
func (u untouchableStore) MarkOTPCompleted(context.Context, string) error {
	u.t.Fatal("store accessed")
	return nil
}

// --- helpers ---

var testCfg = config.OTP{
	Characters:      "digits",
	Length:          6,
	ValidityPeriod:  300,
	MessageTemplate: "Your code is {code}",
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(store Store, m Messenger, cfg config.OTP) *service {
	s := NewService(store, m, cfg, time.Second).(*service)
	s.now = func() time.Time { return t0 }
	return s
}

// fixedDigits makes intN return the indices of code in the numeric alphabet.
func fixedDigits(code string) func(int) int {
	i := 0
	return func(int) int {
		d := int(code[i] - '0')
		i++
		return d
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var re *responses.Error
	require.True(t, errors.As(err, &re), "expected catalog error, got %v", err)
	assert.Equal(t, code, re.Code)
}

func seed(t *testing.T, store *memStore, code string, created time.Time) string {
	t.Helper()
	ref := id.New()
	require.NoError(t, store.InsertOTPRequest(context.Background(), &domain.OTPRequest{
		ID: ref, Mobile: "+14155552671", Code: code, CreatedAt: created,
	}))
	return ref
}

// --- Init ---

func TestInit_RendersTemplateAndPersists(t *testing.T) {
	store := newMemStore()
	m := new(mockMessenger)
	m.On("BalanceSufficient", mock.Anything).Return(true, nil)
	m.On("SendSMS", mock.Anything, "+10000000000", "Your code is 482913").
		Return(&domain.SMSDispatch{Accepted: true, Status: "1801", ExternalRef: "77"}, nil)

	s := newTestService(store, m, testCfg)
	s.intN = fixedDigits("482913")

	res, err := s.Init(context.Background(), "+10000000000")
	require.NoError(t, err)
	assert.Equal(t, "200", res.Code)
	assert.Equal(t, "OTP Code has been sent to +10000000000. Persist the reference to database.", res.Message)
	assert.True(t, id.Valid(res.Reference))

	saved, err := store.FindOTPRequestByID(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.Equal(t, "482913", saved.Code)
	assert.Equal(t, "77", saved.ExternalRef)
	assert.Equal(t, "+10000000000", saved.Mobile)
	assert.False(t, saved.Completed)
	m.AssertExpectations(t)
}

func TestInit_LowBalance(t *testing.T) {
	m := new(mockMessenger)
	m.On("BalanceSufficient", mock.Anything).Return(false, nil)

	_, err := newTestService(untouchableStore{t}, m, testCfg).Init(context.Background(), "+14155552671")
	assertCode(t, err, responses.LowBalance)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	m.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestInit_GatewayRejectionPassedThrough(t *testing.T) {
	m := new(mockMessenger)
	m.On("BalanceSufficient", mock.Anything).Return(true, nil)
	m.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.SMSDispatch{Status: "1805", Message: "Invalid recipient"}, nil)

	_, err := newTestService(untouchableStore{t}, m, testCfg).Init(context.Background(), "+14155552671")
	assertCode(t, err, "1805")
	assert.Contains(t, err.Error(), "Invalid recipient")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestInit_TransportError(t *testing.T) {
	m := new(mockMessenger)
	m.On("BalanceSufficient", mock.Anything).Return(false, domain.ErrUpstream)

	_, err := newTestService(untouchableStore{t}, m, testCfg).Init(context.Background(), "+14155552671")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestGenerate_RespectsLengthAndAlphabet(t *testing.T) {
	for _, chars := range []string{"digits", "number", "alpha", "alphabets", "alnum", "alphanumeric", "bogus"} {
		cfg := testCfg
		cfg.Characters = chars
		cfg.Length = 12
		s := newTestService(newMemStore(), new(mockMessenger), cfg)
		for i := 0; i < 50; i++ {
			code := s.generate()
			assert.Len(t, code, 12)
			assert.True(t, matchesAlphabet(code, alphabetFor(chars)), "%s: %q", chars, code)
		}
	}
}

func TestAlphabetFor(t *testing.T) {
	assert.Equal(t, numeric, alphabetFor("digit"))
	assert.Equal(t, numeric, alphabetFor("numbers"))
	assert.Equal(t, numeric, alphabetFor(""))
	assert.Equal(t, alphabets, alphabetFor("alpha"))
	assert.Equal(t, alphanumeric, alphabetFor("alnum"))
}

// --- Complete ---

func TestComplete_SucceedsExactlyOnce(t *testing.T) {
	store := newMemStore()
	s := newTestService(store, new(mockMessenger), testCfg)
	ref := seed(t, store, "482913", t0.Add(-time.Minute))

	res, err := s.Complete(context.Background(), ref, "482913")
	require.NoError(t, err)
	assert.Equal(t, "200", res.Code)
	assert.Equal(t, "Mobile number +14155552671 has been successfully verified", res.Message)

	_, err = s.Complete(context.Background(), ref, "482913")
	assertCode(t, err, responses.AlreadyVerified)
}

func TestComplete_MalformedReferenceNeverTouchesStore(t *testing.T) {
	s := newTestService(untouchableStore{t}, new(mockMessenger), testCfg)
	_, err := s.Complete(context.Background(), "not-a-uuid", "482913")
	assertCode(t, err, responses.InvalidReference)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestComplete_CodeOutsideCharset(t *testing.T) {
	s := newTestService(untouchableStore{t}, new(mockMessenger), testCfg)
	_, err := s.Complete(context.Background(), id.New(), "48a913")
	assertCode(t, err, responses.InvalidOTP)
}

func TestComplete_UnknownReference(t *testing.T) {
	s := newTestService(newMemStore(), new(mockMessenger), testCfg)
	_, err := s.Complete(context.Background(), id.New(), "482913")
	assertCode(t, err, responses.UnknownReference)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestComplete_Expiry(t *testing.T) {
	store := newMemStore()
	s := newTestService(store, new(mockMessenger), testCfg)

	atEdge := seed(t, store, "111111", t0.Add(-300*time.Second))
	_, err := s.Complete(context.Background(), atEdge, "111111")
	require.NoError(t, err)

	past := seed(t, store, "222222", t0.Add(-301*time.Second))
	_, err = s.Complete(context.Background(), past, "222222")
	assertCode(t, err, responses.OTPExpired)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestComplete_ExpiredCheckedBeforeMismatch(t *testing.T) {
	store := newMemStore()
	s := newTestService(store, new(mockMessenger), testCfg)
	ref := seed(t, store, "482913", t0.Add(-time.Hour))

	_, err := s.Complete(context.Background(), ref, "000000")
	assertCode(t, err, responses.OTPExpired)
}

func TestComplete_WrongCodeLeavesRequestOpen(t *testing.T) {
	store := newMemStore()
	s := newTestService(store, new(mockMessenger), testCfg)
	ref := seed(t, store, "482913", t0)

	_, err := s.Complete(context.Background(), ref, "482914")
	assertCode(t, err, responses.InvalidOTP)
	assert.ErrorIs(t, err, domain.ErrMismatch)

	_, err = s.Complete(context.Background(), ref, "482913")
	assert.NoError(t, err)
}

func TestComplete_ConcurrentSingleWinner(t *testing.T) {
	store := newMemStore()
	s := newTestService(store, new(mockMessenger), testCfg)
	ref := seed(t, store, "482913", t0)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Complete(context.Background(), ref, "482913"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Your code is 482913", render("Your code is {code}", "482913"))
	assert.Equal(t, "no token", render("no token", "482913"))
}

func TestComplete_SubSecondCreationThroughSQLite(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "otp.db"),
		config.DatabaseTables{SMSOTP: "otp_requests", CallVerification: "call_waitlists"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	created := time.Date(2024, 3, 1, 0, 0, 0, 900_000_000, time.UTC)
	m := new(mockMessenger)
	m.On("BalanceSufficient", mock.Anything).Return(true, nil)
	m.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.SMSDispatch{Accepted: true, Status: "1801"}, nil)

	s := newTestService(store, m, testCfg)
	s.intN = fixedDigits("482913")
	s.now = func() time.Time { return created }
	res, err := s.Init(context.Background(), "+14155552671")
	require.NoError(t, err)

	s.now = func() time.Time { return created.Add(299*time.Second + 500*time.Millisecond) }
	out, err := s.Complete(context.Background(), res.Reference, "482913")
	require.NoError(t, err)
	assert.Equal(t, "200", out.Code)
}

func TestComplete_ExpiresAfterWholeValiditySecond(t *testing.T) {
	store := newMemStore()
	created := time.Date(2024, 3, 1, 0, 0, 0, 900_000_000, time.UTC)
	s := newTestService(store, new(mockMessenger), testCfg)
	ref := seed(t, store, "482913", created)

	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 5, 0, 999_000_000, time.UTC) }
	_, err := s.Complete(context.Background(), ref, "000000")
	assertCode(t, err, responses.InvalidOTP)

	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 5, 1, 0, time.UTC) }
	_, err = s.Complete(context.Background(), ref, "482913")
	assertCode(t, err, responses.OTPExpired)
}
