package csrf

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/middleware"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// RejectHook is called for every request the guard turns away.
type RejectHook func(c echo.Context)

// Protect returns middleware that rejects POST, PUT, PATCH and DELETE
// requests whose token does not match the session's. Must run after
// session.Middleware. The current token, if any, is exposed to templates
// through middleware.GetCSRFToken.
func Protect(g *Guard, onReject RejectHook) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if sess == nil {
				return apperror.NewMissingContext()
			}

			req := c.Request()
			if !Verify(req.Method, sess, middleware.SubmittedCSRFToken(c)) {
				slog.Warn("csrf token rejected",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("ip", c.RealIP()),
				)
				if onReject != nil {
					onReject(c)
				}
				return apperror.NewCSRFRejected()
			}

			if sess.CSRFToken != "" {
				middleware.SetCSRFToken(c, sess.CSRFToken)
			}
			return next(c)
		}
	}
}

// Expose makes sure the request's session has a token and publishes it for
// templates. Handlers that render forms call this before rendering.
func (g *Guard) Expose(c echo.Context) (string, error) {
	sess := session.FromContext(c)
	if sess == nil {
		return "", apperror.NewMissingContext()
	}
	token, err := g.Token(c.Request().Context(), sess)
	if err != nil {
		return "", err
	}
	middleware.SetCSRFToken(c, token)
	return token, nil
}
