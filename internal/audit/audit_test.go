package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorEventNames(t *testing.T) {
	require.Equal(t, "SERVER_ERROR_REFRESH_TOKEN", ServerError("refresh token"))
	require.Equal(t, "CLIENT_ERROR_CHANGE_PASSWORD", ClientError("change-password"))
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))
	ctx := context.Background()

	sink.Emit(ctx, Event{Name: LoginSuccess, AdminID: "admin_1", IP: "10.1.1.1"})
	sink.Emit(ctx, Event{Name: LoginFailure, Email: "x@example.com", Reason: "INVALID_CREDENTIALS"})
	sink.Emit(ctx, Event{Name: ServerError("login"), Fields: map[string]any{"error": "boom"}})

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "audit", fields["type"])
	require.Equal(t, LoginSuccess, fields["event"])
	require.Equal(t, "admin_1", fields["admin_id"])
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Emit(context.Background(), Event{Name: TokenIssued})
	r.Emit(context.Background(), Event{Name: TokenRotated})
	require.Equal(t, []string{TokenIssued, TokenRotated}, r.Names())
}
