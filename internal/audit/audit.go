// Package audit emits structured security events. Delivery belongs to the
// Sink; emitting never fails the calling operation.
package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	LoginSuccess           = "LOGIN_SUCCESS"
	LoginFailure           = "LOGIN_FAILURE"
	AccountLocked          = "ACCOUNT_LOCKED"
	AccountUnlocked        = "ACCOUNT_UNLOCKED"
	AccountStatusChanged   = "ACCOUNT_STATUS_CHANGED"
	AccountDeleted         = "ACCOUNT_DELETED"
	AdminCreated           = "ADMIN_CREATED"
	PasswordChanged        = "PASSWORD_CHANGED"
	PasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	PasswordResetCompleted = "PASSWORD_RESET_COMPLETED"
	TokenIssued            = "TOKEN_ISSUED"
	TokenRotated           = "TOKEN_ROTATED"
	TokenInvalid           = "TOKEN_INVALID"
	TokenExpired           = "TOKEN_EXPIRED"
	TokenStale             = "TOKEN_STALE"
	TokensRevoked          = "TOKENS_REVOKED"
	SystemEntityProtected  = "SYSTEM_ENTITY_PROTECTED"
	RoleChanged            = "ROLE_CHANGED"
	PermissionChanged      = "PERMISSION_CHANGED"
)

// ServerError names the event for an unexpected failure in op.
func ServerError(op string) string { return "SERVER_ERROR_" + eventSuffix(op) }

// ClientError names the event for a caller-caused failure in op.
func ClientError(op string) string { return "CLIENT_ERROR_" + eventSuffix(op) }

func eventSuffix(op string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(strings.TrimSpace(op)))
}

type Event struct {
	Name      string
	AdminID   string
	Email     string
	IP        string
	UserAgent string
	Reason    string
	Fields    map[string]any
	At        time.Time
}

type Sink interface {
	Emit(ctx context.Context, e Event)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// Nop discards every event.
var Nop Sink = nopSink{}

// ZapSink writes events as structured log entries tagged type=audit.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", e.Name),
		zap.Time("at", e.At),
	}
	if e.AdminID != "" {
		fields = append(fields, zap.String("admin_id", e.AdminID))
	}
	if e.Email != "" {
		fields = append(fields, zap.String("email", e.Email))
	}
	if e.IP != "" {
		fields = append(fields, zap.String("ip", e.IP))
	}
	if e.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", e.UserAgent))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if len(e.Fields) > 0 {
		fields = append(fields, zap.Any("fields", e.Fields))
	}

	if strings.HasPrefix(e.Name, "SERVER_ERROR_") {
		s.logger.Error("audit event", fields...)
		return
	}
	if strings.HasPrefix(e.Name, "CLIENT_ERROR_") || e.Name == LoginFailure || e.Name == AccountLocked {
		s.logger.Warn("audit event", fields...)
		return
	}
	s.logger.Info("audit event", fields...)
}

// Recorder keeps events in memory; tests use it to assert emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names lists emitted event names in order.
func (r *Recorder) Names() []string {
	events := r.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}
