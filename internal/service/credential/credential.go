// Package credential hashes and verifies admin passwords and issues reset
// tokens. It never touches storage.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost          = 12
	DefaultResetTokenTTL = 15 * time.Minute
	maxPasswordBytes     = 72
	resetTokenBytes      = 32
)

type Manager struct {
	cost     int
	resetTTL time.Duration
	now      func() time.Time
	// dummyHash lets Verify spend bcrypt time when the account is unknown.
	dummyHash []byte
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithResetTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.resetTTL = ttl
		}
	}
}

// NewManager builds a manager with the given bcrypt work factor. Values
// outside bcrypt's range fall back to DefaultCost.
func NewManager(cost int, opts ...Option) *Manager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	m := &Manager{
		cost:     cost,
		resetTTL: DefaultResetTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("placeholder-password"), m.cost)
	return m
}

func (m *Manager) Cost() int { return m.cost }

// Hash derives a bcrypt hash. Only empty or oversized input is rejected.
func (m *Manager) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", xerrors.Invalid("password", "must not be empty")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", xerrors.Invalid("password", "must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), m.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares plaintext with hash in constant time. A mismatch is
// (false, nil); only a malformed hash returns an error. Input longer than
// Hash accepts never matches, since bcrypt ignores bytes past the 72nd.
func (m *Manager) Verify(plaintext, hash string) (bool, error) {
	if hash == "" {
		return false, &xerrors.CorruptCredentialError{Reason: "empty hash"}
	}
	if len(plaintext) > maxPasswordBytes {
		m.DummyVerify(plaintext[:maxPasswordBytes])
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, &xerrors.CorruptCredentialError{Reason: err.Error()}
	}
}

// DummyVerify burns the same bcrypt time as a real comparison.
func (m *Manager) DummyVerify(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(m.dummyHash, []byte(plaintext))
}

// IssueResetToken writes a fresh token digest and expiry onto a's security
// fields, replacing any earlier one, and returns the raw token. Persisting a
// is the caller's job.
func (m *Manager) IssueResetToken(a *admin.Admin) (string, error) {
	raw, err := RandomToken(resetTokenBytes)
	if err != nil {
		return "", err
	}
	expires := m.now().UTC().Add(m.resetTTL)
	a.Security.PasswordResetToken = Digest(raw)
	a.Security.PasswordResetExpires = &expires
	return raw, nil
}

// RandomToken returns n random bytes, base64url encoded without padding.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest is the stored form of an opaque token.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
