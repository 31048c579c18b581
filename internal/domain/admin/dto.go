package admin

import "time"

// DeviceMeta describes the client behind an attempt or a session.
type DeviceMeta struct {
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	Info      map[string]any `json:"device_info,omitempty"`
}

// CreateAdminRequest represents the request for creating a new admin
type CreateAdminRequest struct {
	Email     string         `json:"email" binding:"required,email"`
	Password  string         `json:"password" binding:"required,min=8"`
	RoleID    string         `json:"role_id" binding:"required"`
	FirstName string         `json:"first_name" binding:"required"`
	LastName  string         `json:"last_name" binding:"required"`
	Phone     string         `json:"phone,omitempty"`
	Timezone  string         `json:"timezone,omitempty"`
	Language  string         `json:"language,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// UpdateStatusRequest is used by administrators to suspend or reactivate.
type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

// AssignRoleRequest moves an admin to another role.
type AssignRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// LoginRequest represents admin login credentials
type LoginRequest struct {
	Email      string         `json:"email" binding:"required,email"`
	Password   string         `json:"password" binding:"required"`
	DeviceInfo map[string]any `json:"device_info,omitempty"`
	IPAddress  string         `json:"-"`
	UserAgent  string         `json:"-"`
}

// LoginResponse represents successful login data
type LoginResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Admin            AdminInfo `json:"admin"`
	Permissions      []string  `json:"permissions"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string         `json:"refresh_token" binding:"required"`
	DeviceInfo   map[string]any `json:"device_info,omitempty"`
	IPAddress    string         `json:"-"`
	UserAgent    string         `json:"-"`
}

// LogoutRequest optionally names the refresh token to revoke.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AdminInfo represents public admin information
type AdminInfo struct {
	ID          string     `json:"admin_id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Initials    string     `json:"initials"`
	RoleID      string     `json:"role_id"`
	Profile     Profile    `json:"profile"`
	Status      Status     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChangePasswordRequest for authenticated password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ForgotPasswordRequest for password reset initiation
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest for completing password reset
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}
