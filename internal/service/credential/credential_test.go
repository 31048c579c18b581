package credential

import (
	"strings"
	"testing"
	"time"

	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestManager(opts ...Option) *Manager {
	return NewManager(bcrypt.MinCost, opts...)
}

func TestHashVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	for _, pw := range []string{"correct horse", "p@55w0rd!", strings.Repeat("x", 72), "密码密码密码"} {
		hash, err := m.Hash(pw)
		require.NoError(t, err)
		require.NotEqual(t, pw, hash)

		ok, err := m.Verify(pw, hash)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = m.Verify(pw+"!", hash)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestHashRejectsEmptyAndOversized(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	_, err := m.Hash("")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = m.Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestVerifyCorruptHash(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	for _, bad := range []string{"", "not-a-hash", "$2a$04$short"} {
		ok, err := m.Verify("whatever", bad)
		require.False(t, ok)
		require.ErrorIs(t, err, xerrors.ErrCorruptCredential, bad)
	}
}

func TestVerifyOversizedPlaintextIsMismatch(t *testing.T) {
	t.Parallel()

	m := newTestManager()
	hash, err := m.Hash("short-password")
	require.NoError(t, err)

	ok, err := m.Verify(strings.Repeat("b", 100), hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewManagerClampsCost(t *testing.T) {
	t.Parallel()
	require.Equal(t, DefaultCost, NewManager(99).Cost())
	require.Equal(t, bcrypt.MinCost, NewManager(bcrypt.MinCost).Cost())
}

func TestIssueResetTokenOverwritesPrevious(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	m := newTestManager(WithClock(func() time.Time { return now }))
	a := &admin.Admin{ID: "admin_1"}

	first, err := m.IssueResetToken(a)
	require.NoError(t, err)
	second, err := m.IssueResetToken(a)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, Digest(second), a.Security.PasswordResetToken)
	require.NotEqual(t, Digest(first), a.Security.PasswordResetToken)
	require.Equal(t, now.Add(15*time.Minute), *a.Security.PasswordResetExpires)
}

func TestRandomTokenLength(t *testing.T) {
	t.Parallel()

	tok, err := RandomToken(32)
	require.NoError(t, err)
	require.Len(t, tok, 43)
	require.Len(t, Digest(tok), 64)
}
