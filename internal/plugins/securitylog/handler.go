package securitylog

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/auth"
	"github.com/keyxmakerx/hrportal/internal/plugins/totp"
)

// Handler serves the security event log and the TOTP diagnostic tool.
type Handler struct {
	service  SecurityService
	recorder *Recorder
	users    auth.UserRepository
	verifier *totp.Verifier
	now      func() time.Time
}

// NewHandler creates a new security log handler.
func NewHandler(service SecurityService, recorder *Recorder, users auth.UserRepository, verifier *totp.Verifier) *Handler {
	return &Handler{
		service:  service,
		recorder: recorder,
		users:    users,
		verifier: verifier,
		now:      time.Now,
	}
}

// eventsResponse is the body of GET /admin/security/events.
type eventsResponse struct {
	Events  []SecurityEvent `json:"events"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"perPage"`
	Stats   *SecurityStats  `json:"stats"`
}

// Events lists security events (GET /admin/security/events?type=&page=).
func (h *Handler) Events(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	events, total, err := h.service.ListEvents(ctx, c.QueryParam("type"), page)
	if err != nil {
		return err
	}
	stats, err := h.service.GetStats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, eventsResponse{
		Events:  events,
		Total:   total,
		Page:    page,
		PerPage: PerPage,
		Stats:   stats,
	})
}

// diagnoseRequest names the account and the code the user typed.
type diagnoseRequest struct {
	Username string `json:"username" form:"username"`
	Code     string `json:"code" form:"code"`
}

// diagnoseResponse wraps the diagnostic with the account it ran against.
type diagnoseResponse struct {
	UserID      string          `json:"userId"`
	Username    string          `json:"username"`
	TOTPEnabled bool            `json:"totpEnabled"`
	Diagnostic  totp.Diagnostic `json:"diagnostic"`
}

// DiagnoseTOTP explains why a user's codes are or are not accepted
// (POST /admin/security/totp-diagnostics). The secret is never returned in
// full.
func (h *Handler) DiagnoseTOTP(c echo.Context) error {
	var req diagnoseRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return apperror.NewValidation("username is required")
	}

	user, err := h.users.FindByUsername(c.Request().Context(), username)
	if err != nil {
		if apperror.SafeCode(err) == http.StatusNotFound {
			return err
		}
		return apperror.NewStoreUnavailable(err)
	}
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return apperror.NewValidation("user has no TOTP secret configured")
	}

	diag := h.verifier.Diagnose(*user.TOTPSecret, req.Code, h.now())

	if h.recorder != nil {
		h.recorder.Record(c, EventTOTPDiagnostics, subjectOf(c), map[string]any{
			"target_user_id": user.ID,
			"accepted":       diag.Accepted,
		})
	}

	return c.JSON(http.StatusOK, diagnoseResponse{
		UserID:      user.ID,
		Username:    user.Username,
		TOTPEnabled: user.TOTPEnabled,
		Diagnostic:  diag,
	})
}
