package xerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Identity and access errors
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountInactive       = errors.New("account is inactive")
	ErrAccountSuspended      = errors.New("account is suspended")
	ErrAccountLocked         = errors.New("account is temporarily locked")
	ErrSystemEntityProtected = errors.New("system entity is protected")
	ErrCorruptCredential     = errors.New("stored credential is corrupt")
	ErrStorageUnavailable    = errors.New("storage unavailable")

	ErrTokenInvalid = errors.New("refresh token is invalid")
	ErrTokenExpired = errors.New("refresh token has expired")
	ErrTokenStale   = errors.New("refresh token predates the last password change")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError with a formatted message.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AccountLockedError carries how long the caller has to wait.
type AccountLockedError struct {
	Until      time.Time
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// SystemEntityProtectedError is returned when a mutation touches fields of a
// system role or permission outside the allow-list, or tries to delete one.
type SystemEntityProtectedError struct {
	Entity string
	ID     string
	Op     string
	Fields []string
}

func (e *SystemEntityProtectedError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("cannot %s system %s %s", e.Op, e.Entity, e.ID)
	}
	return fmt.Sprintf("cannot %s system %s %s: fields [%s] are protected",
		e.Op, e.Entity, e.ID, strings.Join(e.Fields, ", "))
}

func (e *SystemEntityProtectedError) Unwrap() error { return ErrSystemEntityProtected }

// CorruptCredentialError means a stored hash could not be parsed.
type CorruptCredentialError struct {
	Reason string
}

func (e *CorruptCredentialError) Error() string {
	return "stored credential is corrupt: " + e.Reason
}

func (e *CorruptCredentialError) Unwrap() error { return ErrCorruptCredential }

// storageError keeps both the retryable sentinel and the transport cause.
type storageError struct {
	cause error
}

func (e *storageError) Error() string {
	return ErrStorageUnavailable.Error() + ": " + e.cause.Error()
}

func (e *storageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.cause} }

// Storage classifies deadline and cancellation failures as ErrStorageUnavailable.
// Any other error is returned unchanged.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &storageError{cause: err}
	}
	return err
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
