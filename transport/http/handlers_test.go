package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/doctorauth/adapters/pin"
	"github.com/layer-3/doctorauth/adapters/ratelimit"
	"github.com/layer-3/doctorauth/adapters/store"
	"github.com/layer-3/doctorauth/adapters/tokenizer"
	"github.com/layer-3/doctorauth/core"
	"github.com/layer-3/doctorauth/ports"
	"github.com/layer-3/doctorauth/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testIdentity = "doc-1"
	testPin      = "482913"
)

type testServer struct {
	router *gin.Engine
	tokens *store.MemoryStore
}

type serverOptions struct {
	attempts ports.AttemptStore
	limiter  ports.RateLimiter
	health   ports.Pinger
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := store.NewMemoryStore()
	if opts.attempts == nil {
		opts.attempts = store.NewMemoryAttemptStore()
	}
	if opts.health == nil {
		opts.health = tokens
	}

	tk, err := tokenizer.NewJWTTokenizer([]byte("0123456789abcdef0123456789abcdef"), "doctorauth", "doctor-portal")
	require.NoError(t, err)

	hash, err := pin.HashPin(testPin, bcrypt.MinCost)
	require.NoError(t, err)
	matcher, err := pin.NewBcryptMatcher(map[string]string{testIdentity: hash})
	require.NoError(t, err)

	tracker := service.NewAttemptTracker(opts.attempts, service.DefaultMaxAttempts, service.DefaultLockoutDuration)
	verifier := service.NewPinVerifier(tracker, matcher, opts.limiter, service.PinPolicy{CountMalformed: true})
	issuer, err := service.NewTokenIssuer(tk, tokens, service.DefaultAccessTTL, service.DefaultRefreshTTL)
	require.NoError(t, err)

	authService := service.NewAuthService(tk, tokens, verifier, issuer, nil, zerolog.Nop())
	router := SetupRouter(authService, RouterConfig{
		Identity: testIdentity,
		Cookies:  CookieConfig{Secure: true},
		Health:   opts.health,
	}, zerolog.Nop())

	return &testServer{router: router, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) verifyPin(t *testing.T, pin string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, "/api/auth/verify-pin", `{"pin":"`+pin+`"}`, nil, nil)
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodePin(t *testing.T, rec *httptest.ResponseRecorder) PinResponse {
	t.Helper()
	var resp PinResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) StatusResponse {
	t.Helper()
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestVerifyPin_SuccessSetsCookies(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.verifyPin(t, testPin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodePin(t, rec).Success)

	access := cookieNamed(rec, AccessCookieName)
	refresh := cookieNamed(rec, RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)

	for _, c := range []*http.Cookie{access, refresh} {
		assert.True(t, c.HttpOnly, c.Name)
		assert.True(t, c.Secure, c.Name)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite, c.Name)
		assert.Equal(t, "/", c.Path, c.Name)
	}
	assert.Equal(t, int(service.DefaultAccessTTL.Seconds()), access.MaxAge)
	assert.Equal(t, int(service.DefaultRefreshTTL.Seconds()), refresh.MaxAge)
}

func TestVerifyPin_WrongThenLocked(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	for want := 4; want >= 1; want-- {
		rec := s.verifyPin(t, "000000")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		resp := decodePin(t, rec)
		require.NotNil(t, resp.RemainingAttempts)
		assert.Equal(t, want, *resp.RemainingAttempts)
		assert.Nil(t, cookieNamed(rec, AccessCookieName))
	}

	rec := s.verifyPin(t, "000000")
	require.Equal(t, http.StatusLocked, rec.Code)
	resp := decodePin(t, rec)
	assert.True(t, resp.LockedOut)
	require.NotNil(t, resp.RemainingTime)
	assert.InDelta(t, 900, *resp.RemainingTime, 1)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = s.verifyPin(t, testPin)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Nil(t, cookieNamed(rec, AccessCookieName))
}

func TestVerifyPin_BadRequests(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	bodies := []string{`{"pin":"12"}`, `{"pin":1234}`, `{"pin":`, `not json`}

	// Every unusable body costs an attempt under the default policy.
	for i, body := range bodies {
		rec := s.do(t, http.MethodPost, "/api/auth/verify-pin", body, nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		resp := decodePin(t, rec)
		assert.Equal(t, core.ErrMalformedPin.Error(), resp.Error, body)
		require.NotNil(t, resp.RemainingAttempts, body)
		assert.Equal(t, service.DefaultMaxAttempts-1-i, *resp.RemainingAttempts, body)
	}
}

func TestVerifyPin_UnreadableBodyIsRateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{limiter: ratelimit.NewMemoryLimiter(1, time.Minute)})

	s.do(t, http.MethodPost, "/api/auth/verify-pin", `{"pin":1234}`, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/verify-pin", `{"pin":1234}`, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVerifyPin_RateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{limiter: ratelimit.NewMemoryLimiter(2, time.Minute)})

	s.verifyPin(t, "000000")
	s.verifyPin(t, "000000")

	rec := s.verifyPin(t, testPin)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodePin(t, rec)
	assert.True(t, resp.RateLimited)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type brokenAttemptStore struct{}

func (brokenAttemptStore) ReserveAttempt(context.Context, string, time.Time, int, time.Duration) (core.AttemptRecord, bool, error) {
	return core.AttemptRecord{}, false, core.ErrStoreUnavailable
}

func (brokenAttemptStore) Get(context.Context, string) (core.AttemptRecord, error) {
	return core.AttemptRecord{}, core.ErrStoreUnavailable
}

func (brokenAttemptStore) Reset(context.Context, string) error {
	return core.ErrStoreUnavailable
}

func TestVerifyPin_StoreFailureIs500(t *testing.T) {
	s := newTestServer(t, serverOptions{attempts: brokenAttemptStore{}})

	rec := s.verifyPin(t, testPin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, cookieNamed(rec, AccessCookieName))
	assert.NotContains(t, rec.Body.String(), "store unavailable")
}

func TestRefresh_RotatesOnce(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	login := s.verifyPin(t, testPin)
	require.Equal(t, http.StatusOK, login.Code)
	original := cookieNamed(login, RefreshCookieName)

	rec := s.do(t, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{original}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeStatus(t, rec).Success)
	rotated := cookieNamed(rec, RefreshCookieName)
	require.NotNil(t, rotated)
	assert.NotEqual(t, original.Value, rotated.Value)
	assert.NotNil(t, cookieNamed(rec, AccessCookieName))

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{original}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgInvalidRefresh, decodeStatus(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{rotated}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_HeaderFallback(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	login := s.verifyPin(t, testPin)
	refresh := cookieNamed(login, RefreshCookieName)

	rec := s.do(t, http.MethodPost, "/api/auth/refresh", "", nil, map[string]string{RefreshTokenHeader: refresh.Value})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_Rejections(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	login := s.verifyPin(t, testPin)

	tests := []struct {
		name    string
		cookies []*http.Cookie
	}{
		{name: "missing"},
		{name: "garbage", cookies: []*http.Cookie{{Name: RefreshCookieName, Value: "garbage"}}},
		{name: "access token", cookies: []*http.Cookie{{Name: RefreshCookieName, Value: cookieNamed(login, AccessCookieName).Value}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/refresh", "", tt.cookies, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, msgInvalidRefresh, decodeStatus(t, rec).Error)
		})
	}
}

func TestLogout_RevokesAndClearsCookies(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	login := s.verifyPin(t, testPin)
	refresh := cookieNamed(login, RefreshCookieName)

	rec := s.do(t, http.MethodPost, "/api/auth/logout", "", []*http.Cookie{refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeStatus(t, rec).Success)

	cleared := cookieNamed(rec, RefreshCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Zero(t, s.tokens.Len())

	rec = s.do(t, http.MethodPost, "/api/auth/refresh", "", []*http.Cookie{refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WithoutSessionSucceeds(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/auth/logout", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/logout", "", []*http.Cookie{{Name: RefreshCookieName, Value: "garbage"}}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	login := s.verifyPin(t, testPin)
	access := cookieNamed(login, AccessCookieName)

	rec := s.do(t, http.MethodGet, "/api/auth/me", "", []*http.Cookie{access}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"doc-1"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/auth/me", "", nil, map[string]string{"Authorization": "Bearer " + access.Value})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	refresh := cookieNamed(login, RefreshCookieName)
	rec = s.do(t, http.MethodGet, "/api/auth/me", "", nil, map[string]string{"Authorization": "Bearer " + refresh.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type pingerFunc func(ctx context.Context) error

func (p pingerFunc) Ping(ctx context.Context) error {
	return p(ctx)
}

func TestHealth(t *testing.T) {
	rec := newTestServer(t, serverOptions{}).do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := pingerFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })
	rec = newTestServer(t, serverOptions{health: down}).do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
