package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/estock/internal/config"
	"github.com/iliyamo/estock/internal/docstore"
	"github.com/iliyamo/estock/internal/identity"
	"github.com/iliyamo/estock/internal/model"
	"github.com/iliyamo/estock/internal/session"
)

type tokenTable map[string]model.Identity

func (t tokenTable) VerifyToken(_ context.Context, token string) (model.Identity, error) {
	id, ok := t[token]
	if !ok {
		return model.Identity{}, identity.ErrUnauthenticated
	}
	return id, nil
}

type revokeLog struct {
	mu   sync.Mutex
	uids []string
}

func (r *revokeLog) RevokeSessions(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = append(r.uids, uid)
	return nil
}

type fixture struct {
	e       *echo.Echo
	store   *docstore.MemStore
	revoked *revokeLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemStore()
	tokens := tokenTable{
		"admin":    {UID: "u-admin", Email: "admin@example.com"},
		"viewer":   {UID: "u-viewer", Email: "viewer@example.com"},
		"disabled": {UID: "u-off", Email: "off@example.com"},
		"fresh":    {UID: "u-fresh", Email: "fresh@example.com"},
	}
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "u-admin", map[string]any{"role": "admin"}, false))
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "u-viewer", map[string]any{"role": "viewer"}, false))
	require.NoError(t, store.Set(ctx, model.CollectionUsers, "u-off", map[string]any{"role": "contributor", "disabled": true}, false))

	f := &fixture{e: echo.New(), store: store, revoked: &revokeLog{}}
	gate := Gate{Resolver: session.NewResolver(tokens, store, nil), Revoker: f.revoked, LoginURL: "/login_main.html"}

	whoami := func(c echo.Context) error {
		s := CurrentSession(c)
		return c.JSON(http.StatusOK, echo.Map{"uid": s.UID, "role": s.Role, "user_id": c.Get("user_id")})
	}
	f.e.GET("/me", whoami, gate.Require())
	f.e.GET("/write", whoami, gate.Require(), RequireRole("/index.html", model.RoleAdmin, model.RoleContributor))
	f.e.Any("/admin/ping", whoami, gate.Admin())
	return f
}

func (f *fixture) do(method, target, token string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestGateRequire(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login_main.html", body["redirect"])

	rec, _ = f.do(http.MethodGet, "/me", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body = f.do(http.MethodGet, "/me", "fresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "viewer", body["role"])
	assert.Equal(t, "u-fresh", body["user_id"])

	rec, body = f.do(http.MethodGet, "/me?access_token=admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", body["role"])
}

func TestDisabledAccountIsSignedOutOnNextRequest(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(http.MethodGet, "/me", "viewer")
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.store.Update(context.Background(), model.CollectionUsers, "u-viewer", map[string]any{"disabled": true}))
	rec, body := f.do(http.MethodGet, "/me", "viewer")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account disabled", body["error"])
	assert.Equal(t, "/login_main.html", body["redirect"])

	rec, _ = f.do(http.MethodGet, "/me", "disabled")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"u-viewer", "u-off"}, f.revoked.uids)
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(http.MethodGet, "/write", "viewer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/index.html", body["redirect"])

	rec, _ = f.do(http.MethodGet, "/write", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminGate(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(http.MethodPost, "/admin/ping", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing ID token", body["error"])

	rec, body = f.do(http.MethodPost, "/admin/ping", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired ID token", body["error"])

	rec, body = f.do(http.MethodPost, "/admin/ping", "viewer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Admin only", body["error"])

	rec, _ = f.do(http.MethodPost, "/admin/ping?access_token=admin", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "query tokens are only read on GET")

	rec, _ = f.do(http.MethodPost, "/admin/ping", "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/x", ok, NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil), NewRedisCache(config.CacheConfig{Enabled: true}, nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
	assert.Equal(t, "rl:ip:10.0.0.1:user:guest:route:POST /v1/auth/login", buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))

	setSession(c, session.Session{UID: "u-1", Role: model.RoleViewer})
	assert.Equal(t, "rl:user:u-1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
}
