package admin

import (
	"errors"
	"time"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
	DefaultHistoryLimit     = 50
)

// ErrLockActive is returned by a store when a success write finds the account
// locked by a concurrent failure.
var ErrLockActive = errors.New("admin: lockout active")

type LockoutPolicy struct {
	Threshold    int
	Duration     time.Duration
	HistoryLimit int
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold:    DefaultLockoutThreshold,
		Duration:     DefaultLockoutDuration,
		HistoryLimit: DefaultHistoryLimit,
	}
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = DefaultHistoryLimit
	}
	return p
}

// IsLocked reports whether the lockout expiry lies in the future.
func (a *Admin) IsLocked(now time.Time) bool {
	until := a.Security.AccountLockedUntil
	return until != nil && until.After(now)
}

// LockRemaining is zero when the account is not locked.
func (a *Admin) LockRemaining(now time.Time) time.Duration {
	if !a.IsLocked(now) {
		return 0
	}
	return a.Security.AccountLockedUntil.Sub(now)
}

// EffectiveStatus evaluates the lock lazily. A stored LOCKED status whose
// expiry has passed reads as ACTIVE.
func (a *Admin) EffectiveStatus(now time.Time) Status {
	if a.IsLocked(now) {
		return StatusLocked
	}
	if a.Status == StatusLocked {
		return StatusActive
	}
	return a.Status
}

// PushHistory prepends entry and evicts the oldest entries beyond limit.
func (a *Admin) PushHistory(entry LoginHistoryEntry, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if entry.Success {
		entry.FailureReason = ""
	}
	history := make([]LoginHistoryEntry, 0, min(len(a.LoginHistory)+1, limit))
	history = append(history, entry)
	for _, h := range a.LoginHistory {
		if len(history) == limit {
			break
		}
		history = append(history, h)
	}
	a.LoginHistory = history
}

// ApplyFailure records a failed attempt. While a lock is active only the
// history changes. An expired lock restarts the counter before incrementing.
// It reports whether this attempt engaged the lock.
func ApplyFailure(a *Admin, entry LoginHistoryEntry, policy LockoutPolicy, now time.Time) bool {
	policy = policy.normalized()
	entry.Success = false
	a.PushHistory(entry, policy.HistoryLimit)
	a.UpdatedAt = now

	if a.IsLocked(now) {
		return false
	}

	attempts := a.Security.FailedLoginAttempts
	if a.Security.AccountLockedUntil != nil {
		attempts = 0
		a.Security.AccountLockedUntil = nil
		if a.Status == StatusLocked {
			a.Status = StatusActive
		}
	}
	attempts++

	failedAt := now
	a.Security.FailedLoginAttempts = attempts
	a.Security.LastFailedLogin = &failedAt

	if attempts >= policy.Threshold {
		until := now.Add(policy.Duration)
		a.Security.AccountLockedUntil = &until
		// Suspended and inactive accounts keep their stored status and read
		// as LOCKED through EffectiveStatus until the lock expires.
		if a.Status == StatusActive {
			a.Status = StatusLocked
		}
		return true
	}
	return false
}

// ApplySuccess records a successful attempt and clears lockout state.
func ApplySuccess(a *Admin, entry LoginHistoryEntry, policy LockoutPolicy, now time.Time) error {
	if a.IsLocked(now) {
		return ErrLockActive
	}
	policy = policy.normalized()
	entry.Success = true
	a.PushHistory(entry, policy.HistoryLimit)

	loginAt := now
	a.LastLoginAt = &loginAt
	a.Security.FailedLoginAttempts = 0
	a.Security.AccountLockedUntil = nil
	if a.Status == StatusLocked {
		a.Status = StatusActive
	}
	a.UpdatedAt = now
	return nil
}

// LockEngagedAt reports whether the failure recorded at now is the one that
// engaged the current lock. Failures during an active lock never move
// LastFailedLogin, so only the engaging attempt matches.
func (a *Admin) LockEngagedAt(now time.Time) bool {
	last := a.Security.LastFailedLogin
	return a.IsLocked(now) && last != nil && last.Equal(now)
}
