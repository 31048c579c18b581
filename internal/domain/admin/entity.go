// internal/domain/admin/entity.go
package admin

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusLocked    Status = "LOCKED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusLocked:
		return true
	}
	return false
}

// FailureReason classifies a failed login history entry.
type FailureReason string

const (
	ReasonInvalidCredentials FailureReason = "INVALID_CREDENTIALS"
	ReasonAccountInactive    FailureReason = "ACCOUNT_INACTIVE"
	ReasonAccountSuspended   FailureReason = "ACCOUNT_SUSPENDED"
	ReasonAccountLocked      FailureReason = "ACCOUNT_LOCKED"
	ReasonOther              FailureReason = "OTHER"
)

type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Timezone  string `json:"timezone"`
	Language  string `json:"language"`
}

type LoginHistoryEntry struct {
	IP            string        `json:"ip"`
	UserAgent     string        `json:"user_agent"`
	Timestamp     time.Time     `json:"timestamp"`
	Success       bool          `json:"success"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// Security holds lockout and reset state. It is never serialized outward.
type Security struct {
	FailedLoginAttempts  int
	LastFailedLogin      *time.Time
	AccountLockedUntil   *time.Time
	PasswordChangedAt    *time.Time
	PasswordResetToken   string // sha256 hex of the raw token
	PasswordResetExpires *time.Time
}

type Admin struct {
	ID           string              `json:"admin_id" db:"id"`
	Email        string              `json:"email" db:"email"`
	PasswordHash string              `json:"-" db:"password_hash"`
	RoleID       string              `json:"role_id" db:"role_id"`
	Profile      Profile             `json:"profile"`
	Status       Status              `json:"status" db:"status"`
	LastLoginAt  *time.Time          `json:"last_login_at,omitempty" db:"last_login_at"`
	LoginHistory []LoginHistoryEntry `json:"login_history,omitempty" db:"login_history"`
	Security     Security            `json:"-"`
	CreatedBy    string              `json:"created_by,omitempty" db:"created_by"`
	UpdatedBy    string              `json:"updated_by,omitempty" db:"updated_by"`
	IsDeleted    bool                `json:"-" db:"is_deleted"`
	DeletedAt    *time.Time          `json:"-" db:"deleted_at"`
	DeletedBy    string              `json:"-" db:"deleted_by"`
	Metadata     map[string]any      `json:"-" db:"metadata"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

func (a *Admin) FullName() string {
	return strings.TrimSpace(a.Profile.FirstName + " " + a.Profile.LastName)
}

func (a *Admin) Initials() string {
	var b strings.Builder
	for _, part := range []string{a.Profile.FirstName, a.Profile.LastName} {
		if r := []rune(strings.TrimSpace(part)); len(r) > 0 {
			b.WriteRune(r[0])
		}
	}
	return strings.ToUpper(b.String())
}

// Public projects the admin for API consumers.
func (a *Admin) Public(now time.Time) AdminInfo {
	return AdminInfo{
		ID:          a.ID,
		Email:       a.Email,
		FullName:    a.FullName(),
		Initials:    a.Initials(),
		RoleID:      a.RoleID,
		Profile:     a.Profile,
		Status:      a.EffectiveStatus(now),
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// Clone returns a deep copy, so stores can hand out snapshots.
func (a *Admin) Clone() *Admin {
	if a == nil {
		return nil
	}
	c := *a
	c.LoginHistory = append([]LoginHistoryEntry(nil), a.LoginHistory...)
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	c.DeletedAt = cloneTime(a.DeletedAt)
	c.Security.LastFailedLogin = cloneTime(a.Security.LastFailedLogin)
	c.Security.AccountLockedUntil = cloneTime(a.Security.AccountLockedUntil)
	c.Security.PasswordChangedAt = cloneTime(a.Security.PasswordChangedAt)
	c.Security.PasswordResetExpires = cloneTime(a.Security.PasswordResetExpires)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
