package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/service/auth"
	rbacsvc "backoffice-iam/internal/service/rbac"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

type stubValidator map[string]*auth.Identity

func (s stubValidator) ValidateAccessToken(_ context.Context, raw string) (*auth.Identity, error) {
	if raw == "suspended" {
		return nil, xerrors.ErrAccountSuspended
	}
	id, ok := s[raw]
	if !ok {
		return nil, xerrors.ErrUnauthorized
	}
	return id, nil
}

func identity(id string, keys ...string) *auth.Identity {
	a := &admin.Admin{ID: id, RoleID: "role_1"}
	return &auth.Identity{Admin: a, JTI: "jti-" + id, Principal: rbacsvc.NewPrincipal(a, "ROLE", keys)}
}

func newRouter(m *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.GET("/me", m.Auth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin_id": MustGetAdminID(c), "jti": MustGetIdentity(c).JTI})
	})
	r.GET("/admins", append(m.WithPermission(rbacsvc.PermAdminsRead, rbacsvc.PermAdminsManage), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)
	r.GET("/manage", m.Auth(), m.RequireAllPermissions(rbacsvc.PermAdminsRead, rbacsvc.PermAdminsManage), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(NewAuthMiddleware(stubValidator{
		"reader":  identity("admin_r", rbacsvc.PermAdminsRead),
		"manager": identity("admin_m", rbacsvc.PermAdminsRead, rbacsvc.PermAdminsManage),
		"nobody":  identity("admin_n"),
	}))

	cases := []struct {
		name, path, token string
		want              int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"unknown token", "/me", "forged", http.StatusUnauthorized},
		{"suspended account", "/me", "suspended", http.StatusForbidden},
		{"valid token", "/me", "reader", http.StatusOK},
		{"any permission", "/admins", "reader", http.StatusOK},
		{"no permission", "/admins", "nobody", http.StatusForbidden},
		{"all permissions missing one", "/manage", "reader", http.StatusForbidden},
		{"all permissions", "/manage", "manager", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tc.path, tc.token)
			require.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}

	w := do(r, http.MethodGet, "/me", "reader")
	require.JSONEq(t, `{"admin_id":"admin_r","jti":"jti-admin_r"}`, w.Body.String())
}

func TestExtractTokenNeedsBearerScheme(t *testing.T) {
	r := newRouter(NewAuthMiddleware(stubValidator{"reader": identity("admin_r")}))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic reader")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.New(core)))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(LoggingMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	do(r, http.MethodGet, "/ok?token=secret", "")
	do(r, http.MethodGet, "/missing", "")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, "/ok", entries[0].ContextMap()["path"])
	require.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://ops.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerIP(t *testing.T) {
	l := NewIPRateLimiter(2, time.Hour)
	r := gin.New()
	r.POST("/login", RateLimit(l), func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, post("10.0.0.1").Code)
	require.Equal(t, http.StatusOK, post("10.0.0.1").Code)

	w := post("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, post("10.0.0.2").Code)
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1")
	require.True(t, ok)
	ok, wait := l.Allow("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, time.Minute, wait)

	now = now.Add(2 * time.Minute)
	l.evict()
	require.Empty(t, l.buckets)

	ok, _ = l.Allow("10.0.0.1")
	require.True(t, ok)
}
