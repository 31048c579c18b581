// Package auth composes the security engine, the authorization model and the
// refresh token store into the sign in, session and account administration
// flows served over HTTP and websocket.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/token"
	wstypes "backoffice-iam/internal/domain/websocket"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/pkg/jwt"
	rbacsvc "backoffice-iam/internal/service/rbac"
	"backoffice-iam/internal/service/security"
	tokensvc "backoffice-iam/internal/service/token"

	"go.uber.org/zap"
)

const tokenType = "Bearer"

// Denylist blocks access tokens before their natural expiry.
type Denylist interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	RevokeAdmin(ctx context.Context, adminID string, at time.Time) error
	Revoked(ctx context.Context, jti, adminID string, issuedAt time.Time) (bool, error)
}

// Limiter throttles attempts per subject.
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// Notifier pushes session and access events to connected consoles.
type Notifier interface {
	ForceLogout(adminID, sessionID, reason string)
	NotifyRoleAssigned(adminID string, change wstypes.RoleChangeData)
	NotifyAccountLocked(data wstypes.SecurityEventData)
}

type nopNotifier struct{}

func (nopNotifier) ForceLogout(string, string, string)               {}
func (nopNotifier) NotifyRoleAssigned(string, wstypes.RoleChangeData) {}
func (nopNotifier) NotifyAccountLocked(wstypes.SecurityEventData)     {}

type AuthService struct {
	engine   *security.Engine
	rbac     *rbacsvc.Service
	tokens   *tokensvc.Store
	jwt      *jwt.Manager
	mailer   *EmailHelper
	denylist Denylist
	limiter  Limiter
	notifier Notifier
	resetTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*AuthService)

func WithDenylist(d Denylist) Option {
	return func(s *AuthService) { s.denylist = d }
}

// WithForgotPasswordLimiter throttles reset emails per address.
func WithForgotPasswordLimiter(l Limiter) Option {
	return func(s *AuthService) { s.limiter = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *AuthService) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResetTTL is the lifetime quoted in reset emails.
func WithResetTTL(ttl time.Duration) Option {
	return func(s *AuthService) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// NewAuthService wires the facade and registers it as the engine's
// credential hook, so every password change, status change or deletion
// revokes the admin's sessions.
func NewAuthService(
	engine *security.Engine,
	rbac *rbacsvc.Service,
	tokens *tokensvc.Store,
	jwtManager *jwt.Manager,
	mailer *EmailHelper,
	logger *zap.Logger,
	opts ...Option,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuthService{
		engine:   engine,
		rbac:     rbac,
		tokens:   tokens,
		jwt:      jwtManager,
		mailer:   mailer,
		notifier: nopNotifier{},
		resetTTL: 15 * time.Minute,
		now:      time.Now,
		logger:   logger.Named("auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	engine.OnCredentialsChanged(s.RevokeSessions)
	return s
}

// Identity is the authenticated caller behind an access token.
type Identity struct {
	Admin     *admin.Admin
	JTI       string
	ExpiresAt time.Time
	Device    string
	Principal rbacsvc.Principal
}

func (i *Identity) AdminID() string { return i.Admin.ID }

func (i *Identity) HasPermission(key string) bool { return i.Principal.HasPermission(key) }

// MeResponse describes the caller.
type MeResponse struct {
	Admin       admin.AdminInfo `json:"admin"`
	RoleName    string          `json:"role_name"`
	Permissions []string        `json:"permissions"`
	SessionID   string          `json:"session_id"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// ========== Login ==========

// Login authenticates the credentials and issues an access and refresh token.
func (s *AuthService) Login(ctx context.Context, req *admin.LoginRequest) (*admin.LoginResponse, error) {
	meta := admin.DeviceMeta{IP: req.IPAddress, UserAgent: req.UserAgent, Info: req.DeviceInfo}

	a, err := s.engine.Authenticate(ctx, req.Email, req.Password, meta)
	if err != nil {
		return nil, err
	}

	principal, err := s.rbac.EffectivePermissions(ctx, a)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, a, meta)
	if err != nil {
		return nil, err
	}
	return s.respond(a, principal, refresh, req.UserAgent)
}

// Refresh rotates a refresh token. The owner must still be ACTIVE.
func (s *AuthService) Refresh(ctx context.Context, req *admin.RefreshRequest) (*admin.LoginResponse, error) {
	meta := admin.DeviceMeta{IP: req.IPAddress, UserAgent: req.UserAgent, Info: req.DeviceInfo}

	owner, _, err := s.tokens.Validate(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(owner); err != nil {
		return nil, err
	}

	refresh, a, err := s.tokens.Rotate(ctx, req.RefreshToken, meta)
	if err != nil {
		return nil, err
	}
	principal, err := s.rbac.EffectivePermissions(ctx, a)
	if err != nil {
		return nil, err
	}
	return s.respond(a, principal, refresh, req.UserAgent)
}

func (s *AuthService) respond(a *admin.Admin, p rbacsvc.Principal, refresh tokensvc.Issued, device string) (*admin.LoginResponse, error) {
	access, err := s.jwt.Generator.GenerateAccessToken(jwt.AccessSubject{
		AdminID:     a.ID,
		Email:       a.Email,
		RoleID:      a.RoleID,
		RoleName:    p.RoleName,
		Permissions: p.Keys,
		Device:      device,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to sign access token")
	}

	return &admin.LoginResponse{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Value,
		TokenType:        tokenType,
		ExpiresIn:        int(s.jwt.Generator.Ttl.Seconds()),
		ExpiresAt:        access.ExpiresAt,
		RefreshExpiresAt: refresh.Token.ExpiresAt,
		Admin:            a.Public(s.now()),
		Permissions:      p.Keys,
	}, nil
}

func (s *AuthService) requireActive(a *admin.Admin) error {
	now := s.now()
	switch a.EffectiveStatus(now) {
	case admin.StatusActive:
		return nil
	case admin.StatusLocked:
		remaining := a.LockRemaining(now)
		return &xerrors.AccountLockedError{Until: now.Add(remaining), RetryAfter: remaining}
	case admin.StatusSuspended:
		return xerrors.ErrAccountSuspended
	default:
		return xerrors.ErrAccountInactive
	}
}

// ========== Access tokens ==========

// ValidateAccessToken verifies the signature and claims, then checks the
// denylist and the live account: status, deletion and password changes made
// after the token was signed. Permissions are resolved live.
func (s *AuthService) ValidateAccessToken(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.jwt.Verifier.VerifyAccessToken(raw)
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, xerrors.ErrUnauthorized
	}
	issuedAt := claims.IssuedAt.Time

	if s.denylist != nil {
		revoked, err := s.denylist.Revoked(ctx, claims.ID, claims.AdminID, issuedAt)
		if err != nil {
			s.logger.Error("denylist lookup failed", zap.String("admin_id", claims.AdminID), zap.Error(err))
			return nil, xerrors.Wrap(xerrors.ErrStorageUnavailable, "session check failed")
		}
		if revoked {
			return nil, xerrors.ErrUnauthorized
		}
	}

	a, err := s.engine.Get(ctx, claims.AdminID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if changed := a.Security.PasswordChangedAt; changed != nil && issuedAt.Before(changed.Truncate(time.Second)) {
		return nil, xerrors.ErrUnauthorized
	}
	if err := s.requireActive(a); err != nil {
		return nil, err
	}

	principal, err := s.rbac.EffectivePermissions(ctx, a)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Admin:     a,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Device:    claims.Device,
		Principal: principal,
	}, nil
}

// Me describes the caller.
func (s *AuthService) Me(id *Identity) *MeResponse {
	return &MeResponse{
		Admin:       id.Admin.Public(s.now()),
		RoleName:    id.Principal.RoleName,
		Permissions: id.Principal.Keys,
		SessionID:   id.JTI,
		ExpiresAt:   id.ExpiresAt,
	}
}

// ========== Logout ==========

// Logout ends the caller's session: the refresh token, when given, is
// revoked and the access token is denied until it expires.
func (s *AuthService) Logout(ctx context.Context, id *Identity, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken, id.AdminID()); err != nil {
			return err
		}
	}
	if s.denylist != nil {
		if err := s.denylist.RevokeToken(ctx, id.JTI, id.ExpiresAt); err != nil {
			s.logger.Error("failed to deny access token", zap.String("admin_id", id.AdminID()), zap.Error(err))
			return xerrors.Wrap(xerrors.ErrStorageUnavailable, "failed to end session")
		}
	}
	s.notifier.ForceLogout(id.AdminID(), id.JTI, "logout")
	return nil
}

// LogoutAll ends every session of the caller.
func (s *AuthService) LogoutAll(ctx context.Context, id *Identity) error {
	return s.RevokeSessions(ctx, id.AdminID(), "logout_all")
}

// RevokeSessions revokes all refresh tokens of adminID, denies every access
// token signed so far and disconnects its consoles.
func (s *AuthService) RevokeSessions(ctx context.Context, adminID, reason string) error {
	n, err := s.tokens.RevokeAll(ctx, adminID, adminID)
	if err != nil {
		return err
	}
	if s.denylist != nil {
		if err := s.denylist.RevokeAdmin(ctx, adminID, s.now()); err != nil {
			// Live status and password checks still reject the tokens that matter.
			s.logger.Warn("failed to deny access tokens", zap.String("admin_id", adminID), zap.Error(err))
		}
	}
	s.notifier.ForceLogout(adminID, "", reason)
	s.logger.Info("sessions revoked",
		zap.String("admin_id", adminID), zap.String("reason", reason), zap.Int64("refresh_tokens", n))
	return nil
}

// ListSessions returns the live refresh tokens of adminID.
func (s *AuthService) ListSessions(ctx context.Context, adminID string) ([]*token.RefreshToken, error) {
	return s.tokens.ListActive(ctx, adminID)
}

// ========== Password Management ==========

// ChangePassword replaces the caller's password. Every session, including
// the current one, is revoked.
func (s *AuthService) ChangePassword(ctx context.Context, id *Identity, req *admin.ChangePasswordRequest) error {
	if err := s.engine.ChangePassword(ctx, id.AdminID(), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	s.mailer.SendPasswordChangedEmail(id.Admin.Email, id.Admin.FullName(), s.now())
	return nil
}

// ForgotPassword emails a reset link. The outcome is the same whether or not
// the address belongs to an account.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	subject := strings.ToLower(strings.TrimSpace(emailAddr))
	if s.limiter != nil {
		ok, retry, err := s.limiter.Allow(ctx, subject)
		if err != nil {
			s.logger.Warn("forgot password limiter unavailable", zap.Error(err))
		} else if !ok {
			s.logger.Info("forgot password throttled", zap.String("email", subject), zap.Duration("retry_after", retry))
			return nil
		}
	}

	raw, a, err := s.engine.RequestPasswordReset(ctx, emailAddr)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mailer.SendPasswordResetEmail(a.Email, a.FullName(), raw, s.resetTTL)
	return nil
}

// ResetPassword redeems a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, req *admin.ResetPasswordRequest) error {
	a, err := s.engine.ResetPassword(ctx, req.Token, req.NewPassword)
	if err != nil {
		return err
	}
	s.mailer.SendPasswordChangedEmail(a.Email, a.FullName(), s.now())
	return nil
}

// ========== Account administration ==========

func (s *AuthService) CreateAdmin(ctx context.Context, req *admin.CreateAdminRequest, actor string) (*admin.AdminInfo, error) {
	a, err := s.engine.Provision(ctx, *req, actor)
	if err != nil {
		return nil, err
	}
	roleName := a.RoleID
	if role, err := s.rbac.GetRole(ctx, a.RoleID); err == nil {
		roleName = role.DisplayName
	}
	s.mailer.SendAccountCreatedEmail(a.Email, a.FullName(), roleName)

	info := a.Public(s.now())
	return &info, nil
}

func (s *AuthService) GetAdmin(ctx context.Context, adminID string) (*admin.AdminInfo, error) {
	a, err := s.engine.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	info := a.Public(s.now())
	return &info, nil
}

func (s *AuthService) ListAdmins(ctx context.Context, f admin.Filter) ([]admin.AdminInfo, error) {
	admins, err := s.engine.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]admin.AdminInfo, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Public(now))
	}
	return out, nil
}

// SetAdminStatus moves an admin between ACTIVE, INACTIVE and SUSPENDED.
func (s *AuthService) SetAdminStatus(ctx context.Context, adminID string, status admin.Status, actor string) error {
	return s.engine.SetStatus(ctx, adminID, status, actor)
}

func (s *AuthService) SuspendAdmin(ctx context.Context, adminID, actor string) error {
	return s.engine.SetStatus(ctx, adminID, admin.StatusSuspended, actor)
}

func (s *AuthService) ActivateAdmin(ctx context.Context, adminID, actor string) error {
	return s.engine.SetStatus(ctx, adminID, admin.StatusActive, actor)
}

func (s *AuthService) UnlockAdmin(ctx context.Context, adminID, actor string) error {
	return s.engine.Unlock(ctx, adminID, actor)
}

func (s *AuthService) DeleteAdmin(ctx context.Context, adminID, actor string) error {
	return s.engine.SoftDelete(ctx, adminID, actor)
}

// AssignRole moves an admin to another role and tells its consoles to
// refresh their tokens.
func (s *AuthService) AssignRole(ctx context.Context, adminID, roleID, actor string) error {
	if err := s.engine.AssignRole(ctx, adminID, roleID, actor); err != nil {
		return err
	}
	change := wstypes.RoleChangeData{RoleID: roleID}
	if role, err := s.rbac.GetRole(ctx, roleID); err == nil {
		change.RoleName = role.RoleName
	}
	s.notifier.NotifyRoleAssigned(adminID, change)
	return nil
}

// ========== Audit forwarding ==========

type lockoutSink struct {
	next     audit.Sink
	notifier Notifier
	mailer   *EmailHelper
}

// LockoutNotifier forwards every event to next and additionally announces
// ACCOUNT_LOCKED events to consoles and to the locked admin by email.
func LockoutNotifier(next audit.Sink, n Notifier, mailer *EmailHelper) audit.Sink {
	if next == nil {
		next = audit.Nop
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &lockoutSink{next: next, notifier: n, mailer: mailer}
}

func (l *lockoutSink) Emit(ctx context.Context, e audit.Event) {
	l.next.Emit(ctx, e)
	if e.Name != audit.AccountLocked {
		return
	}

	data := wstypes.SecurityEventData{AdminID: e.AdminID, Email: e.Email}
	if until, ok := e.Fields["locked_until"].(*time.Time); ok && until != nil {
		data.LockedUntil = until
		if l.mailer != nil && e.Email != "" {
			l.mailer.SendAccountLockedEmail(e.Email, e.Email, *until)
		}
	}
	l.notifier.NotifyAccountLocked(data)
}
