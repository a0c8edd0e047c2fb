package securitylog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
	"github.com/keyxmakerx/hrportal/internal/sanitize"
)

// PerPage is the number of security events returned per page.
const PerPage = 50

// statsWindow is the look-back period for dashboard aggregates.
const statsWindow = 24 * time.Hour

// Column widths in security_events.
const (
	maxIPLength        = 45
	maxUserAgentLength = 512
)

// SecurityService handles security event recording and querying.
type SecurityService interface {
	// LogEvent records a security event.
	LogEvent(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any) error

	// ListEvents returns paginated security events, optionally filtered by type.
	ListEvents(ctx context.Context, eventType string, page int) ([]SecurityEvent, int, error)

	// GetStats returns aggregates over the last 24 hours.
	GetStats(ctx context.Context) (*SecurityStats, error)
}

// securityService implements SecurityService.
type securityService struct {
	repo SecurityEventRepository
	now  func() time.Time
}

// NewSecurityService creates a new security service.
func NewSecurityService(repo SecurityEventRepository) SecurityService {
	return &securityService{repo: repo, now: time.Now}
}

// LogEvent validates and persists a security event.
func (s *securityService) LogEvent(ctx context.Context, eventType, userID, ip, userAgent string, details map[string]any) error {
	if eventType == "" {
		return apperror.NewBadRequest("event type is required")
	}

	event := &SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		IPAddress: sanitize.Truncate(ip, maxIPLength),
		UserAgent: sanitize.Truncate(sanitize.Text(userAgent), maxUserAgentLength),
		Details:   sanitize.Details(details),
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", eventType),
			slog.String("ip", ip),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("logging security event: %w", err))
	}

	return nil
}

// ListEvents returns paginated security events.
func (s *securityService) ListEvents(ctx context.Context, eventType string, page int) ([]SecurityEvent, int, error) {
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * PerPage
	events, total, err := s.repo.List(ctx, eventType, PerPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing security events: %w", err))
	}
	if events == nil {
		events = []SecurityEvent{}
	}

	return events, total, nil
}

// GetStats returns aggregate security statistics.
func (s *securityService) GetStats(ctx context.Context) (*SecurityStats, error) {
	stats, err := s.repo.GetStats(ctx, s.now().UTC().Add(-statsWindow))
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("getting security stats: %w", err))
	}
	return stats, nil
}

// Recorder adapts the service to the hooks exposed by the security
// components. Every method is fire-and-forget: a failed write is logged by
// LogEvent and never reaches the request.
type Recorder struct {
	service SecurityService
}

// NewRecorder creates a recorder writing through service.
func NewRecorder(service SecurityService) *Recorder {
	return &Recorder{service: service}
}

// Record logs an event with the request's client IP and user agent. It
// satisfies auth.SecurityRecorder.
func (r *Recorder) Record(c echo.Context, eventType, userID string, details map[string]any) {
	req := c.Request()
	ctx := context.WithoutCancel(req.Context())
	_ = r.service.LogEvent(ctx, eventType, userID, c.RealIP(), req.UserAgent(), details)
}

// SessionExpired matches session.ExpireHook.
func (r *Recorder) SessionExpired(c echo.Context, subjectID string) {
	r.Record(c, EventSessionExpired, subjectID, nil)
}

// CSRFRejected matches csrf.RejectHook.
func (r *Recorder) CSRFRejected(c echo.Context) {
	r.Record(c, EventCSRFRejected, subjectOf(c), map[string]any{
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	})
}

// AccessDenied matches access.DenyHook.
func (r *Recorder) AccessDenied(c echo.Context, role, requirement string) {
	r.Record(c, EventAccessDenied, subjectOf(c), map[string]any{
		"role":        role,
		"requirement": requirement,
		"path":        c.Request().URL.Path,
	})
}

// RolePermissionsChanged matches access.ChangeHook.
func (r *Recorder) RolePermissionsChanged(c echo.Context, role string, permissionIDs []int64) {
	r.Record(c, EventRolePermissionsChanged, subjectOf(c), map[string]any{
		"role":           role,
		"permission_ids": permissionIDs,
	})
}

// subjectOf returns the authenticated subject of the request, or "".
func subjectOf(c echo.Context) string {
	sess := session.FromContext(c)
	if sess.IsAnonymous() {
		return ""
	}
	return sess.SubjectID
}
