// Package securitylog records security-relevant events (logins, throttling,
// session expiry, CSRF and authorization rejections, role changes) and lists
// them for administrators.
package securitylog

import (
	"time"

	"github.com/keyxmakerx/hrportal/internal/plugins/auth"
)

// Event type constants follow the "resource.verb" pattern for consistent
// filtering. Login events are emitted by the auth plugin.
const (
	EventLoginSuccess       = auth.EventLoginSuccess
	EventLoginFailed        = auth.EventLoginFailed
	EventLoginThrottled     = auth.EventLoginThrottled
	EventSecondFactorFailed = auth.EventSecondFactorFailed
	EventLogout             = auth.EventLogout

	EventSessionExpired         = "session.expired"
	EventCSRFRejected           = "csrf.rejected"
	EventAccessDenied           = "access.denied"
	EventRolePermissionsChanged = "admin.role_permissions_changed"
	EventTOTPDiagnostics        = "admin.totp_diagnostics"
)

// SecurityEvent is a single security event row.
type SecurityEvent struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`

	// Joined for display; not stored in security_events.
	UserName string `json:"userName,omitempty"`
}

// SecurityStats holds 24-hour aggregates for the security dashboard.
type SecurityStats struct {
	TotalEvents         int `json:"totalEvents"`
	FailedLogins24h     int `json:"failedLogins24h"`
	SuccessfulLogins24h int `json:"successfulLogins24h"`
	Throttled24h        int `json:"throttled24h"`
	UniqueIPs24h        int `json:"uniqueIps24h"`
}

// EventTypeLabel returns a human-readable label for a security event type.
func EventTypeLabel(eventType string) string {
	labels := map[string]string{
		EventLoginSuccess:           "Login Success",
		EventLoginFailed:            "Login Failed",
		EventLoginThrottled:         "Login Throttled",
		EventSecondFactorFailed:     "Second Factor Failed",
		EventLogout:                 "Logout",
		EventSessionExpired:         "Session Expired",
		EventCSRFRejected:           "Security Token Rejected",
		EventAccessDenied:           "Access Denied",
		EventRolePermissionsChanged: "Role Permissions Changed",
		EventTOTPDiagnostics:        "TOTP Diagnostics Run",
	}
	if label, ok := labels[eventType]; ok {
		return label
	}
	return eventType
}
