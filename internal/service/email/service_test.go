package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildMessageHeaders(t *testing.T) {
	t.Parallel()

	msg := string(buildMessage("Back Office <noreply@example.com>", "ops@example.com", "Reset", "<p>hi</p>"))
	require.True(t, strings.HasPrefix(msg, "From: Back Office <noreply@example.com>\r\nTo: ops@example.com\r\nSubject: Reset\r\n"))
	require.Contains(t, msg, "Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	require.Contains(t, msg, "<p>hi</p>")
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLogSender(zap.New(core)).Send("ops@example.com", "Subject", "<p>body</p>"))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "ops@example.com", logs.All()[0].ContextMap()["to"])
}
