// internal/app/wire.go
package app

import (
	"context"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/config"
	"backoffice-iam/internal/domain/admin"
	adminHandler "backoffice-iam/internal/handlers/admin"
	authHandler "backoffice-iam/internal/handlers/auth"
	rbacHandler "backoffice-iam/internal/handlers/rbac"
	wsHandler "backoffice-iam/internal/handlers/websocket"
	"backoffice-iam/internal/metrics"
	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/cache"
	"backoffice-iam/internal/pkg/jwt"
	"backoffice-iam/internal/pkg/session"
	authUsecase "backoffice-iam/internal/service/auth"
	"backoffice-iam/internal/service/credential"
	"backoffice-iam/internal/service/email"
	rbacsvc "backoffice-iam/internal/service/rbac"
	"backoffice-iam/internal/service/security"
	tokensvc "backoffice-iam/internal/service/token"
	"backoffice-iam/internal/websocket"
	wsHandlers "backoffice-iam/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	systemActor = "system"

	forgotPasswordMax    = 3
	forgotPasswordWindow = time.Hour
)

// Deps are the outside resources the application is assembled from. Redis
// is optional; without it there is no permission cache, no access token
// denylist and no per-email reset throttle.
type Deps struct {
	Repos  *Repositories
	Redis  redis.UniversalClient
	JWT    *jwt.Manager
	Sender email.Sender
}

// App is the assembled service graph.
type App struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	Router  *gin.Engine
	Metrics *metrics.Metrics
	Auth    *authUsecase.AuthService
	RBAC    *rbacsvc.Service
	Tokens  *tokensvc.Store
	Hub     *websocket.Hub
	Mailer  *authUsecase.EmailHelper

	loginLimiter *middleware.IPRateLimiter
	resetLimiter *middleware.IPRateLimiter
}

// New wires services, handlers and routes. Nothing runs until Start.
func New(cfg config.AppConfig, logger *zap.Logger, d Deps) (*App, error) {
	m := metrics.New(prometheus.NewRegistry())
	sink := audit.NewZapSink(logger)

	a := &App{cfg: cfg, logger: logger, Metrics: m}

	// ----- Authorization model -----
	rbacOpts := []rbacsvc.Option{
		rbacsvc.WithStorageTimeout(cfg.StorageTimeout),
		rbacsvc.WithAuditSink(sink),
		rbacsvc.WithMetrics(m),
	}
	if d.Redis != nil {
		rbacOpts = append(rbacOpts, rbacsvc.WithCache(cache.NewPermissionCache(d.Redis, cfg.PermissionCacheTTL)))
	}
	a.RBAC = rbacsvc.NewService(d.Repos.Roles, d.Repos.Permissions, logger, rbacOpts...)

	// ----- Refresh tokens -----
	a.Tokens = tokensvc.NewStore(d.Repos.RefreshTokens, d.Repos.Admins, logger,
		tokensvc.WithTTL(cfg.RefreshTokenTTL),
		tokensvc.WithStorageTimeout(cfg.StorageTimeout),
		tokensvc.WithAuditSink(sink),
		tokensvc.WithMetrics(m),
	)

	// ----- WebSocket Hub -----
	// The authenticator reads a.Auth, which is set below before anything connects.
	a.Hub = websocket.NewHub(a.authenticateSocket, m, logger)
	if err := a.Hub.RegisterHandler(wsHandlers.NewSessionHandler(a.Tokens)); err != nil {
		return nil, err
	}

	// ----- Account security -----
	a.Mailer = authUsecase.NewEmailHelper(d.Sender, logger, cfg.ResetURLBase)
	engine := security.NewEngine(d.Repos.Admins, d.Repos.Roles,
		credential.NewManager(cfg.BcryptCost, credential.WithResetTTL(cfg.ResetTokenTTL)),
		logger,
		security.WithPolicy(admin.LockoutPolicy{
			Threshold:    cfg.LockoutThreshold,
			Duration:     cfg.LockoutDuration,
			HistoryLimit: cfg.LoginHistoryLimit,
		}),
		security.WithStorageTimeout(cfg.StorageTimeout),
		security.WithAuditSink(authUsecase.LockoutNotifier(sink, a.Hub, a.Mailer)),
		security.WithMetrics(m),
	)

	// ----- Auth facade -----
	authOpts := []authUsecase.Option{
		authUsecase.WithNotifier(a.Hub),
		authUsecase.WithResetTTL(cfg.ResetTokenTTL),
	}
	if d.Redis != nil {
		authOpts = append(authOpts,
			authUsecase.WithDenylist(session.NewDenylist(d.Redis, cfg.JWT.TTL)),
			authUsecase.WithForgotPasswordLimiter(session.NewLimiter(d.Redis, "forgot-password", forgotPasswordMax, forgotPasswordWindow)),
		)
	}
	a.Auth = authUsecase.NewAuthService(engine, a.RBAC, a.Tokens, d.JWT, a.Mailer, logger, authOpts...)

	// ----- Handlers -----
	a.loginLimiter = middleware.NewIPRateLimiter(middleware.LoginRateBurst, middleware.LoginRateWindow)
	a.resetLimiter = middleware.NewIPRateLimiter(middleware.LoginRateBurst, middleware.LoginRateWindow)

	handlers := &Handlers{
		AuthHandler:       authHandler.NewAuthHandler(a.Auth, logger),
		AdminHandler:      adminHandler.NewAdminHandler(a.Auth, logger),
		RoleHandler:       rbacHandler.NewRoleHandler(a.RBAC, a.Auth, a.Hub, logger),
		PermissionHandler: rbacHandler.NewPermissionHandler(a.RBAC, a.Auth, a.Hub, logger),
		WSHandler:         wsHandler.NewWebSocketHandler(a.Hub, cfg.AllowedOrigins, logger),
		AuthMiddleware:    middleware.NewAuthMiddleware(a.Auth),
		LoginLimit:        middleware.RateLimit(a.loginLimiter),
		ResetLimit:        middleware.RateLimit(a.resetLimiter),
		Metrics:           m,
	}

	a.Router = gin.New()
	a.Router.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(cfg.AllowedOrigins),
	)
	SetupRouter(a.Router, handlers)
	return a, nil
}

func (a *App) authenticateSocket(ctx context.Context, token string) (*websocket.ClientAuth, error) {
	id, err := a.Auth.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &websocket.ClientAuth{
		AdminID:     id.AdminID(),
		SessionID:   id.JTI,
		RoleName:    id.Principal.RoleName,
		Permissions: id.Principal.Keys,
		Email:       id.Admin.Email,
		Device:      id.Device,
	}, nil
}

// Bootstrap seeds the permission catalog and the first super admin. A
// missing super admin is logged, not fatal.
func (a *App) Bootstrap(ctx context.Context) error {
	created, err := a.RBAC.EnsureCatalog(ctx, systemActor)
	if err != nil {
		return err
	}
	if created > 0 {
		a.logger.Info("permission catalog seeded", zap.Int("created", created))
	}

	if err := a.Auth.EnsureSuperAdminExists(ctx, a.cfg.SuperAdmin); err != nil {
		a.logger.Warn("super admin not initialized", zap.Error(err))
	}
	return nil
}

// Start launches the background workers. They stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	go a.Hub.Run(ctx)
	go a.Tokens.RunJanitor(ctx, a.cfg.TokenGCInterval)
	go a.loginLimiter.Run(ctx)
	go a.resetLimiter.Run(ctx)
}
