package xerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	locked := &AccountLockedError{Until: time.Now().Add(time.Minute), RetryAfter: time.Minute}
	require.ErrorIs(t, locked, ErrAccountLocked)
	require.ErrorIs(t, fmt.Errorf("login: %w", locked), ErrAccountLocked)

	var asLocked *AccountLockedError
	require.True(t, As(fmt.Errorf("login: %w", locked), &asLocked))
	require.Equal(t, time.Minute, asLocked.RetryAfter)

	require.ErrorIs(t, Invalid("email", "must not be empty"), ErrInvalidInput)
	require.ErrorIs(t, &SystemEntityProtectedError{Entity: "role", Op: "update"}, ErrSystemEntityProtected)
	require.ErrorIs(t, &CorruptCredentialError{Reason: "short"}, ErrCorruptCredential)
}

func TestSystemEntityProtectedErrorListsFields(t *testing.T) {
	t.Parallel()

	err := &SystemEntityProtectedError{Entity: "role", ID: "role_1", Op: "update", Fields: []string{"roleName", "level"}}
	require.Contains(t, err.Error(), "roleName, level")

	del := &SystemEntityProtectedError{Entity: "permission", ID: "perm_1", Op: "delete"}
	require.Equal(t, "cannot delete system permission perm_1", del.Error())
}

func TestStorageClassifiesDeadlines(t *testing.T) {
	t.Parallel()

	err := Storage(fmt.Errorf("query admins: %w", context.DeadlineExceeded))
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other := errors.New("syntax error")
	require.Equal(t, other, Storage(other))
	require.NoError(t, Storage(nil))
	require.Equal(t, err, Storage(err))
}
