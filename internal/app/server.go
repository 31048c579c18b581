// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backoffice-iam/internal/config"
	"backoffice-iam/internal/db"
	"backoffice-iam/internal/pkg/jwt"
	"backoffice-iam/internal/pkg/response"
	"backoffice-iam/internal/service/email"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start connects storage, builds the app and serves HTTP until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	response.SetProduction(s.cfg.IsProduction())

	// ----- Storage -----
	repos, err := openStorage(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repos.Close()

	// ----- Redis -----
	redisClient, err := s.connectRedis(ctx)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// ----- JWT Manager -----
	jwtManager, err := s.jwtManager()
	if err != nil {
		return err
	}

	// ----- Email -----
	var sender email.Sender
	if s.cfg.SMTPHost != "" {
		sender = email.NewSMTPSender(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPFromName, s.cfg.SMTPSecure)
	} else {
		s.logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		sender = email.NewLogSender(s.logger)
	}

	a, err := New(s.cfg, s.logger, Deps{Repos: repos, Redis: redisClient, JWT: jwtManager, Sender: sender})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	if err := a.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.Mailer.Wait()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.Start(runCtx)

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr), zap.String("env", s.cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) connectRedis(ctx context.Context) (redis.UniversalClient, error) {
	if s.cfg.RedisAddr == "" {
		s.logger.Warn("REDIS_ADDR not set, running without permission cache, token denylist or reset throttle")
		return nil, nil
	}
	client, err := db.NewRedis(ctx, db.RedisConfig{
		ClusterMode: strings.Contains(s.cfg.RedisAddr, ","),
		Addresses:   strings.Split(s.cfg.RedisAddr, ","),
		Password:    s.cfg.RedisPass,
		DB:          s.cfg.RedisDB,
		PoolSize:    10,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.logger.Info("connected to Redis")
	return client, nil
}

// jwtManager loads the signing keys. Outside production a missing key pair
// is replaced by an ephemeral one, which invalidates tokens on restart.
func (s *Server) jwtManager() (*jwt.Manager, error) {
	m, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err == nil {
		return m, nil
	}
	if s.cfg.IsProduction() {
		return nil, fmt.Errorf("load JWT keys: %w", err)
	}

	s.logger.Warn("JWT keys not loaded, generating an ephemeral key", zap.Error(err))
	key, genErr := jwt.GenerateKey()
	if genErr != nil {
		return nil, fmt.Errorf("generate JWT key: %w", genErr)
	}
	return jwt.FromKey(key, s.cfg.JWT), nil
}
