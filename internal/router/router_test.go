package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/csrf"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/sheet"
)

const (
	testUser = "ops"
	testPass = "correct horse"
)

type stubMinter struct{}

func (stubMinter) Mint(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "ya29.delegated", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

type stubSheets struct{}

func (stubSheets) Options(context.Context) (*sheet.Options, error) {
	return &sheet.Options{Categories: []string{"Food"}, Authors: []string{"Anna"}}, nil
}

func (stubSheets) Append(context.Context, sheet.Expense) (*sheet.AppendResult, error) {
	return &sheet.AppendResult{ID: "42", UpdatedRange: "Расходы!A2:E2"}, nil
}

type fixture struct {
	handler http.Handler
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPass), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{Env: config.EnvDevelopment}
	cfg.HTTP.CORSOrigins = []string{"*"}
	cfg.HTTP.StaticDir = t.TempDir()
	cfg.RateLimit.MaxLoginAttempts = 5
	cfg.RateLimit.LoginWindowMinutes = 15
	cfg.Google.RequireSession = true
	if mutate != nil {
		mutate(cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core).Sugar()
	m := metrics.New()

	h := RegisterRoutes(Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Auth: auth.NewService(auth.Options{
			Username:     testUser,
			PasswordHash: string(hash),
			Secret:       "router-test-secret",
			Lifetime:     time.Hour,
		}),
		Limiter: ratelimit.New(cfg.RateLimit.MaxLoginAttempts, cfg.RateLimit.Window()),
		Minter:  stubMinter{},
		Sheets:  stubSheets{},
		CSRF:    csrf.New(csrf.Config{Enabled: cfg.CSRF.Enabled}, logger),
	})
	return &fixture{handler: h, metrics: m, logs: logs}
}

func (f *fixture) do(t *testing.T, method, target, body string, hdr map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"correct horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	return body.Token
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestHealthAndSharedHeaders(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Len(t, rec.Header().Get(RequestIDHeader), 27)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "https://sheets.googleapis.com")

	rec = f.do(t, http.MethodGet, "/api/health", "", map[string]string{RequestIDHeader: "caller-id"})
	assert.Equal(t, "caller-id", rec.Header().Get(RequestIDHeader))

	entries := f.logs.FilterMessage("http request").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "caller-id", entries[len(entries)-1].ContextMap()["request_id"])
}

func TestLoginThenGatedRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	tok := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/protected", "", bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ops"`)

	rec = f.do(t, http.MethodGet, "/api/options", "", bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"categories":["Food"],"authors":["Anna"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/expenses",
		`{"date":"2020-01-02","category":"Food","amount":"10","comment":"","author":"Anna"}`, bearer(tok))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"id":"42","updatedRange":"Расходы!A2:E2"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/auth/google-token", "", bearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"ya29.delegated"`)
}

func TestGatedRoutesRejectWithoutSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/protected"},
		{http.MethodGet, "/api/options"},
		{http.MethodPost, "/api/expenses"},
		{http.MethodPost, "/api/auth/google-token"},
	} {
		rec := f.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.JSONEq(t, `{"success":false,"message":"Access token required"}`, rec.Body.String(), tc.path)

		rec = f.do(t, tc.method, tc.path, "", bearer("not.a.jwt"))
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.path)
		assert.JSONEq(t, `{"success":false,"message":"Invalid or expired token"}`, rec.Body.String(), tc.path)
	}
}

func TestGoogleTokenWithoutSessionWhenOptedOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.Google.RequireSession = false })

	rec := f.do(t, http.MethodPost, "/api/auth/google-token", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ya29.delegated")
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"wrong"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
	}
	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"correct horse"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Too many login attempts, please try again later"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateLimited))

	// other routes are not limited
	rec = f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFEnabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.CSRF.Enabled = true })

	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"correct horse"}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body csrf.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	res := rec.Result()
	defer res.Body.Close()
	require.Len(t, res.Cookies(), 1)
	cookie := res.Cookies()[0]

	rec = f.do(t, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"correct horse"}`,
		map[string]string{csrf.DefaultHeaderName: body.CSRFToken}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEnvInfoOnlyOutsideProduction(t *testing.T) {
	t.Parallel()

	dev := newFixture(t, func(c *config.Config) { c.Google.ServiceAccountPrivateKey = "secret-key" })
	rec := dev.do(t, http.MethodGet, "/api/env-info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"HAS_SERVICE_ACCOUNT_PRIVATE_KEY":true`)
	assert.NotContains(t, rec.Body.String(), "secret-key")

	prod := newFixture(t, func(c *config.Config) { c.Env = config.EnvProduction })
	rec = prod.do(t, http.MethodGet, "/api/env-info", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Not found"}`, rec.Body.String())
}

func TestSPAFallbackInProduction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	f := newFixture(t, func(c *config.Config) {
		c.Env = config.EnvProduction
		c.HTTP.StaticDir = dir
	})

	rec := f.do(t, http.MethodGet, "/app.js", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/expenses/new", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")

	rec = f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>app</html>")

	rec = f.do(t, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoStaticOutsideProduction(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/index.html", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *config.Config) { c.HTTP.CORSOrigins = []string{"https://expenses.example.com/"} })

	rec := f.do(t, http.MethodOptions, "/api/auth/login", "", map[string]string{
		"Origin":                         "https://expenses.example.com",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Authorization, Content-Type",
	})
	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "https://expenses.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = f.do(t, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://expenses.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")

	rec = f.do(t, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	open := newFixture(t, nil)
	rec = open.do(t, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://any.example.com"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSOptions(t *testing.T) {
	t.Parallel()

	o := corsOptions([]string{"https://a.example.com", "*"})
	assert.Equal(t, []string{"*"}, o.AllowedOrigins)
	assert.False(t, o.AllowCredentials)

	o = corsOptions([]string{" https://a.example.com/ ", "", "https://b.example.com"})
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, o.AllowedOrigins)
	assert.True(t, o.AllowCredentials)
	assert.Contains(t, o.ExposedHeaders, "RateLimit-Reset")

	o = corsOptions(nil)
	assert.Empty(t, o.AllowedOrigins)
	assert.False(t, o.AllowCredentials)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.login(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `expense_login_attempts_total{outcome="success"} 1`)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestIDMiddleware(RecoverMiddleware(zap.New(core).Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
}
