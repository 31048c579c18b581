package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"backoffice-iam/internal/config"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	rootEmail = "root@example.com"
	password  = "Password#1"
)

type nullSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *nullSender) Send(to, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to+"|"+subject)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AppConfig{
		Env:               "test",
		AllowedOrigins:    []string{"http://localhost:3000"},
		StorageTimeout:    time.Second,
		BcryptCost:        bcrypt.MinCost,
		LockoutThreshold:  3,
		LockoutDuration:   30 * time.Minute,
		LoginHistoryLimit: 10,
		ResetTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		TokenGCInterval:   time.Hour,
		JWT: jwt.Config{
			Issuer:   "backoffice-iam",
			Audience: "backoffice-admins",
			TTL:      15 * time.Minute,
			KID:      "test",
		},
		SuperAdmin: config.SuperAdminConfig{
			Email:     rootEmail,
			Password:  password,
			FirstName: "Root",
			LastName:  "Admin",
		},
	}

	key, err := jwt.GenerateKey()
	require.NoError(t, err)

	a, err := New(cfg, zaptest.NewLogger(t), Deps{
		Repos:  MemoryRepositories(),
		JWT:    jwt.FromKey(key, cfg.JWT),
		Sender: &nullSender{},
	})
	require.NoError(t, err)
	require.NoError(t, a.Bootstrap(context.Background()))
	t.Cleanup(a.Mailer.Wait)
	return a
}

func do(t *testing.T, a *App, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func login(t *testing.T, a *App, email string) admin.LoginResponse {
	t.Helper()
	w, env := do(t, a, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out admin.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.AccessToken)
	return out
}

func createAuditor(t *testing.T, a *App, email string) {
	t.Helper()
	ctx := context.Background()
	role, err := a.RBAC.GetRoleByName(ctx, "AUDITOR")
	require.NoError(t, err)
	_, err = a.Auth.CreateAdmin(ctx, &admin.CreateAdminRequest{
		Email:     email,
		Password:  password,
		RoleID:    role.ID,
		FirstName: "Olive",
		LastName:  "Audit",
	}, "test")
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	w, _ := do(t, a, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSuperAdminCanManage(t *testing.T) {
	a := newTestApp(t)
	root := login(t, a, rootEmail)

	w, env := do(t, a, http.MethodGet, "/api/v1/auth/me", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), rootEmail)

	w, _ = do(t, a, http.MethodGet, "/api/v1/roles", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/v1/permissions?module=ADMINS", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodGet, "/api/v1/admins", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	a := newTestApp(t)
	for _, path := range []string{"/api/v1/auth/me", "/api/v1/admins", "/api/v1/roles", "/api/v1/ws/stats"} {
		w, _ := do(t, a, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAuditorIsReadOnly(t *testing.T) {
	a := newTestApp(t)
	createAuditor(t, a, "olive@example.com")
	auditor := login(t, a, "olive@example.com")

	w, _ := do(t, a, http.MethodGet, "/api/v1/admins", auditor.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/v1/admins", auditor.AccessToken, gin.H{
		"email": "new@example.com", "password": password, "role_id": "x", "first_name": "N", "last_name": "A",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, a, http.MethodDelete, "/api/v1/roles/anything", auditor.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestLockoutAnswers423(t *testing.T) {
	a := newTestApp(t)
	createAuditor(t, a, "olive@example.com")

	creds := gin.H{"email": "olive@example.com", "password": "wrong-password"}
	for i := 0; i < 2; i++ {
		w, _ := do(t, a, http.MethodPost, "/api/v1/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, _ := do(t, a, http.MethodPost, "/api/v1/auth/login", "", creds)
	require.Equal(t, http.StatusLocked, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// the right password does not help while locked
	w, _ = do(t, a, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "olive@example.com", "password": password})
	require.Equal(t, http.StatusLocked, w.Code)
}

func TestLoginIsRateLimitedPerIP(t *testing.T) {
	a := newTestApp(t)
	creds := gin.H{"email": "nobody@example.com", "password": password}

	for i := 0; i < 5; i++ {
		w, _ := do(t, a, http.MethodPost, "/api/v1/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w, _ := do(t, a, http.MethodPost, "/api/v1/auth/login", "", creds)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestForgotPasswordIsUniform(t *testing.T) {
	a := newTestApp(t)

	known, knownEnv := do(t, a, http.MethodPost, "/api/v1/auth/forgot-password", "", gin.H{"email": rootEmail})
	unknown, unknownEnv := do(t, a, http.MethodPost, "/api/v1/auth/forgot-password", "", gin.H{"email": "ghost@example.com"})

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, known.Code, unknown.Code)
	require.Equal(t, knownEnv.Message, unknownEnv.Message)
}

func TestRefreshAndLogout(t *testing.T) {
	a := newTestApp(t)
	root := login(t, a, rootEmail)

	w, env := do(t, a, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": root.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated admin.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, root.RefreshToken, rotated.RefreshToken)

	// the old refresh token is spent
	w, _ = do(t, a, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": root.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken, gin.H{"refresh_token": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, a, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	login(t, a, rootEmail)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "iam_login_attempts_total")
}
