package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/middleware"
	"github.com/keyxmakerx/hrportal/internal/plugins/csrf"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
	"github.com/keyxmakerx/hrportal/internal/templates/pages"
)

// homePath is where a completed login lands.
const homePath = "/"

// verifyPath serves the second-factor form.
const verifyPath = "/login/verify"

// Handler handles HTTP requests for the login exchange. Handlers are thin:
// they bind the request, call the service, record the security event and
// render the response. No business logic lives here.
type Handler struct {
	service  AuthService
	guard    *csrf.Guard
	recorder SecurityRecorder
}

// NewHandler creates a new auth handler. recorder may be nil.
func NewHandler(service AuthService, guard *csrf.Guard, recorder SecurityRecorder) *Handler {
	return &Handler{service: service, guard: guard, recorder: recorder}
}

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	if !session.FromContext(c).IsAnonymous() {
		return c.Redirect(http.StatusSeeOther, homePath)
	}

	token, err := h.guard.Expose(c)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, pages.LoginPage(token, "", ""))
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := session.FromContext(c)
	result, err := h.service.Login(c.Request().Context(), sess, LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.recordFailure(c, err, "", map[string]any{"username": normalizeUsername(req.Username)})
		return h.renderLoginError(c, err, req.Username)
	}

	if result.Status == StatusSecondFactorRequired {
		if middleware.Negotiate(c) == middleware.VariantJSON {
			return c.JSON(http.StatusAccepted, map[string]string{
				"status":   StatusSecondFactorRequired,
				"redirect": verifyPath,
			})
		}
		return middleware.Redirect(c, verifyPath)
	}

	h.record(c, EventLoginSuccess, result.User.ID, nil)
	return h.loggedIn(c)
}

// VerifyForm renders the second-factor page (GET /login/verify).
func (h *Handler) VerifyForm(c echo.Context) error {
	sess := session.FromContext(c)
	if !sess.HasPendingSecondFactor() {
		return c.Redirect(http.StatusSeeOther, middleware.LoginPath)
	}

	token, err := h.guard.Expose(c)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, pages.SecondFactorPage(token, ""))
}

// Verify processes the one-time code (POST /login/verify).
func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	sess := session.FromContext(c)
	pendingID := ""
	if sess != nil {
		pendingID = sess.PendingSubjectID
	}

	result, err := h.service.VerifySecondFactor(c.Request().Context(), sess, req.Code)
	if err != nil {
		h.recordFailure(c, err, pendingID, nil)
		if apperror.Is(err, apperror.TypeAuthenticationRequired) || middleware.Negotiate(c) == middleware.VariantJSON {
			return err
		}
		code := apperror.SafeCode(err)
		if code >= http.StatusInternalServerError {
			return err
		}
		return middleware.Render(c, code, pages.SecondFactorPage(middleware.GetCSRFToken(c), apperror.SafeMessage(err)))
	}

	h.record(c, EventLoginSuccess, result.User.ID, map[string]any{"second_factor": true})
	return h.loggedIn(c)
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	sess := session.FromContext(c)
	subjectID := ""
	if !sess.IsAnonymous() {
		subjectID = sess.SubjectID
	}

	if err := h.service.Logout(c.Request().Context(), sess); err != nil {
		return err
	}
	if subjectID != "" {
		h.record(c, EventLogout, subjectID, nil)
	}

	if middleware.Negotiate(c) == middleware.VariantJSON {
		return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
	}
	return middleware.Redirect(c, middleware.LoginPath)
}

// Session returns the current session summary and CSRF token
// (GET /api/session). Anonymous callers get a token too so they can log in.
func (h *Handler) Session(c echo.Context) error {
	token, err := h.guard.Expose(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewSessionView(session.FromContext(c), token))
}

// loggedIn answers a completed login.
func (h *Handler) loggedIn(c echo.Context) error {
	if middleware.Negotiate(c) == middleware.VariantJSON {
		sess := session.FromContext(c)
		return c.JSON(http.StatusOK, NewSessionView(sess, sess.CSRFToken))
	}
	return middleware.Redirect(c, homePath)
}

// renderLoginError re-renders the login form for browsers; API clients and
// infrastructure failures go through the error handler.
func (h *Handler) renderLoginError(c echo.Context, err error, username string) error {
	code := apperror.SafeCode(err)
	if middleware.Negotiate(c) == middleware.VariantJSON || code >= http.StatusInternalServerError {
		return err
	}
	return middleware.Render(c, code, pages.LoginPage(middleware.GetCSRFToken(c), username, apperror.SafeMessage(err)))
}

// recordFailure maps a login error to its security event. Store failures
// are not credential failures and are not recorded.
func (h *Handler) recordFailure(c echo.Context, err error, userID string, details map[string]any) {
	switch {
	case apperror.Is(err, apperror.TypeThrottled):
		h.record(c, EventLoginThrottled, userID, details)
	case apperror.Is(err, apperror.TypeSecondFactorInvalid):
		h.record(c, EventSecondFactorFailed, userID, details)
	case apperror.SafeCode(err) == http.StatusUnauthorized && !apperror.Is(err, apperror.TypeAuthenticationRequired):
		h.record(c, EventLoginFailed, userID, details)
	}
}

func (h *Handler) record(c echo.Context, eventType, userID string, details map[string]any) {
	if h.recorder != nil {
		h.recorder.Record(c, eventType, userID, details)
	}
}
