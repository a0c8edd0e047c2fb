// Package auth runs the login exchange for the HR portal: password check,
// optional TOTP second factor, session establishment and logout. It also
// exports the RequireAuth gate used by every authenticated route group.
//
// This is a CORE plugin and cannot be disabled.
package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// PendingTTL bounds how long a password check waits for its second factor.
const PendingTTL = 5 * time.Minute

// bootstrapRole is granted to the first account created on an empty install.
const bootstrapRole = "super_admin"

// Security event types emitted by the login exchange. They follow the
// "resource.verb" pattern used by the security log.
const (
	EventLoginSuccess       = "login.success"
	EventLoginFailed        = "login.failed"
	EventLoginThrottled     = "login.throttled"
	EventSecondFactorFailed = "login.second_factor_failed"
	EventLogout             = "logout"
)

// SecurityRecorder receives login events. Implementations must not block
// the request on persistence failures.
type SecurityRecorder interface {
	Record(c echo.Context, eventType, userID string, details map[string]any)
}

// User is a portal account as seen by the security core. Everything except
// last_login_at is maintained by the HR side of the portal.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Department   string     `json:"department,omitempty"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	TOTPSecret   *string    `json:"-"` // Never expose.
	TOTPEnabled  bool       `json:"totp_enabled"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Subject returns the identity bound to a session at login.
func (u *User) Subject() session.Subject {
	return session.Subject{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Department:  u.Department,
	}
}

// requiresSecondFactor reports whether login must continue to the TOTP step.
func (u *User) requiresSecondFactor() bool {
	return u.TOTPEnabled && u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// VerifyRequest holds the one-time code submitted by the second-factor form.
type VerifyRequest struct {
	Code string `json:"code" form:"code"`
}

// --- Service DTOs ---

// LoginInput is the input for a password check.
type LoginInput struct {
	Username string
	Password string
}

// CreateUserInput is the input for provisioning an account.
type CreateUserInput struct {
	Username    string
	DisplayName string
	Email       string
	Role        string
	Password    string
}

// Login outcomes.
const (
	StatusAuthenticated        = "authenticated"
	StatusSecondFactorRequired = "second_factor_required"
)

// LoginResult reports how far a login got.
type LoginResult struct {
	Status string `json:"status"`
	User   *User  `json:"-"`
}

// SessionView is the session summary returned by GET /api/session. Scripts
// read the CSRF token from here.
type SessionView struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Role          string `json:"role,omitempty"`
	CSRFToken     string `json:"csrf_token"`
}

// NewSessionView summarizes sess for clients.
func NewSessionView(sess *session.Session, csrfToken string) SessionView {
	view := SessionView{CSRFToken: csrfToken}
	if sess.IsAnonymous() {
		return view
	}
	view.Authenticated = true
	view.UserID = sess.SubjectID
	view.Username = sess.Username
	view.DisplayName = sess.DisplayName
	view.Role = sess.Role
	return view
}
