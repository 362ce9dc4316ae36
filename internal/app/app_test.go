package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodlink/bloodlink/internal/audit"
	"github.com/bloodlink/bloodlink/internal/identity"
	"github.com/bloodlink/bloodlink/internal/observability"
	"github.com/bloodlink/bloodlink/internal/orgunit"
	orgunithttp "github.com/bloodlink/bloodlink/internal/orgunit/http"
	"github.com/bloodlink/bloodlink/internal/rbac"
	_ "github.com/bloodlink/bloodlink/testing"
)

type principalMap map[int64]rbac.Principal

func (m principalMap) LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	p, ok := m[userID]
	if !ok {
		return rbac.Principal{}, identity.ErrUnknownPrincipal
	}
	return p, nil
}

type queue struct {
	mu     sync.Mutex
	events []rbac.DenialEvent
}

func (q *queue) EnqueueDenial(ctx context.Context, event rbac.DenialEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *queue) Events() []rbac.DenialEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]rbac.DenialEvent(nil), q.events...)
}

type stubDenials struct{}

func (stubDenials) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return []audit.Entry{}, nil
}

func ptr(id int64) *int64 { return &id }

type harness struct {
	router  http.Handler
	authz   *Authz
	queue   *queue
	metrics *observability.Metrics
}

func testConfig() *Config {
	return &Config{
		AppEnv:              "test",
		AppRequestTimeout:   5 * time.Second,
		JWTSecret:           "integration-secret-0123456789abcdef",
		JWTIssuer:           "bloodlink",
		JWTAudience:         "bloodlink-api",
		JWTLeeway:           time.Second,
		OrgUnitCacheSize:    16,
		OrgUnitCacheTTL:     time.Minute,
		AuditEnqueueTimeout: time.Second,
		RateLimitPerMinute:  1000,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	units := orgunit.NewMemoryRepository(
		orgunit.Unit{ID: 1, Name: "National HQ", Level: orgunit.LevelNational},
		orgunit.Unit{ID: 10, Name: "North", Level: orgunit.LevelRegional, ParentID: ptr(1)},
		orgunit.Unit{ID: 11, Name: "South", Level: orgunit.LevelRegional, ParentID: ptr(1)},
		orgunit.Unit{ID: 100, Name: "Lakeside", Level: orgunit.LevelProvincial, ParentID: ptr(10)},
		orgunit.Unit{ID: 1000, Name: "Harbor Town", Level: orgunit.LevelMunicipal, ParentID: ptr(100)},
	)
	principals := principalMap{
		7: {UserID: 7, IsActive: true, OrgUnitID: 10, Level: orgunit.LevelRegional,
			Roles: []string{"Treasurer"}, Permissions: []string{rbac.PermCentersView, rbac.PermFinancialApproveExpenses}},
		8: {UserID: 8, IsActive: true, OrgUnitID: 1, Level: orgunit.LevelNational,
			Permissions: []string{rbac.PermAuditView}},
	}
	q := &queue{}
	metrics := observability.NewMetrics()
	authz, err := NewAuthz(AuthzParams{
		Config:     cfg,
		Logger:     logger,
		Units:      units,
		Principals: principals,
		Redis:      client,
		Queue:      q,
		Metrics:    metrics,
	})
	require.NoError(t, err)

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		RBACMiddleware: authz.Middleware,
		OrgUnitHandler: orgunithttp.NewHandler(authz.Units, authz.Middleware, logger),
		AuditHandler:   audit.NewHandler(stubDenials{}, logger),
	})
	return &harness{router: router, authz: authz, queue: q, metrics: metrics}
}

func (h *harness) token(t *testing.T, userID int64) string {
	t.Helper()
	now := time.Now()
	claims := identity.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "bloodlink",
			Audience:  jwt.ClaimStrings{"bloodlink-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig().JWTSecret))
	require.NoError(t, err)
	return tok
}

func (h *harness) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuthorizesWithinRegion(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, 7)

	assert.Equal(t, http.StatusOK, h.get("/api/org-units/1000", tok).Code)
	assert.Equal(t, http.StatusOK, h.get("/api/me", tok).Code)
	assert.Empty(t, h.queue.Events())
}

func TestRouterDeniesAndEnqueuesAudit(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, 7)

	rec := h.get("/api/org-units/11", tok)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "11", "body does not reveal the unit")

	events := h.queue.Events()
	require.Len(t, events, 1)
	assert.Equal(t, rbac.CheckScope, events[0].Check)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, int64(7), *events[0].UserID)
	assert.NotEmpty(t, events[0].RequestID)
	assert.Equal(t, "192.0.2.10", events[0].IP)
}

func TestRouterRevokedTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, 7)
	require.NoError(t, h.authz.Revocations.Revoke(context.Background(), tok, time.Hour))

	assert.Equal(t, http.StatusUnauthorized, h.get("/api/me", tok).Code)
	events := h.queue.Events()
	require.Len(t, events, 1)
	assert.Equal(t, rbac.ReasonUnauthenticated, events[0].Reason)
	assert.Contains(t, events[0].Detail, "revoked")
}

func TestRouterAuditRoutesRequirePermission(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusForbidden, h.get("/api/audit/denials", h.token(t, 7)).Code)
	assert.Equal(t, http.StatusOK, h.get("/api/audit/denials", h.token(t, 8)).Code)
}

func TestRouterRecordsDecisionMetrics(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, 7)
	h.get("/api/org-units/1000", tok)
	h.get("/api/org-units/11", tok)

	body := h.get("/metrics", "").Body.String()
	assert.Contains(t, body, `bloodlink_authz_decisions_total{check="",outcome="allow",reason=""} 1`)
	assert.Contains(t, body, `bloodlink_authz_decisions_total{check="scope",outcome="deny",reason="forbidden"} 1`)
	assert.Contains(t, body, "bloodlink_http_requests_total")
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	router := NewRouter(RouterParams{
		Config: testConfig(),
		Health: map[string]HealthCheck{
			"postgres": func(*http.Request) error { return errors.New("refused") },
		},
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","postgres":"down"}`, rec.Body.String())
}

func TestUnknownRouteIsProblem(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestNewAuthzValidatesInputs(t *testing.T) {
	_, err := NewAuthz(AuthzParams{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.JWTSecret = ""
	_, err = NewAuthz(AuthzParams{Config: cfg, Units: orgunit.NewMemoryRepository(), Principals: principalMap{}})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.AppEnv = "production"
	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = testConfig()
	cfg.RateLimitPerMinute = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("ORGUNIT_CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, 90*time.Second, cfg.OrgUnitCacheTTL)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, "bloodlink", cfg.JWTIssuer)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&Config{LogFormat: "json", LogLevel: "debug"}, &buf).Debug("shown")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestTestModeEnabled(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  bool
	}{
		{name: "unset", want: false},
		{name: "one", value: "1", set: true, want: true},
		{name: "true", value: "true", set: true, want: true},
		{name: "zero", value: "0", set: true, want: false},
		{name: "garbage", value: "yes please", set: true, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lookup := func(key string) (string, bool) {
				assert.Equal(t, TestModeEnv, key)
				return tc.value, tc.set
			}
			assert.Equal(t, tc.want, testModeEnabled(lookup))
		})
	}

	assert.True(t, InTestMode(), "the testing package forces test mode on")
}
