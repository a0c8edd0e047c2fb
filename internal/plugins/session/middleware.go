package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieName is the HTTP cookie carrying the opaque session ID.
const CookieName = "hr_session"

// contextKeySession is the Echo context key for the request's *Session.
const contextKeySession = "session"

// ExpireHook is called when a request arrives on a session whose idle or
// absolute timer has run out, after the session has been destroyed.
type ExpireHook func(c echo.Context, subjectID string)

// Middleware loads the session named by the cookie, applies the lifecycle
// timers, and stores the result in the Echo context. An expired session is
// destroyed and replaced by a fresh anonymous one for the rest of the
// request. The cookie is issued or expired just before headers are sent, so
// handlers that establish or destroy the session are reflected.
func Middleware(m *Manager, onExpire ExpireHook) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			incoming := ""
			if cookie, err := c.Cookie(CookieName); err == nil {
				incoming = cookie.Value
			}

			sess, err := m.Load(ctx, incoming)
			if err != nil {
				return err
			}

			subjectID := sess.SubjectID
			alive, err := m.Touch(ctx, sess, m.Now())
			if err != nil {
				return err
			}
			if !alive {
				if onExpire != nil {
					onExpire(c, subjectID)
				}
				if sess, err = m.New(); err != nil {
					return err
				}
			}

			Attach(c, sess)
			c.Response().Before(func() {
				writeCookie(c, incoming)
			})

			return next(c)
		}
	}
}

// Attach stores the session in the Echo context.
func Attach(c echo.Context, s *Session) {
	c.Set(contextKeySession, s)
}

// FromContext returns the request's session, or nil if the middleware was
// not applied.
func FromContext(c echo.Context) *Session {
	sess, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return sess
}

// writeCookie reconciles the cookie with the session as it stands at the end
// of the handler chain.
func writeCookie(c echo.Context, incoming string) {
	sess := FromContext(c)
	switch {
	case sess != nil && sess.saved && sess.ID != incoming:
		setSessionCookie(c, sess.ID)
	case incoming != "" && (sess == nil || !sess.saved || sess.ID != incoming):
		clearSessionCookie(c)
	}
}

// setSessionCookie issues a session-lifetime cookie. Server-side timers,
// not the browser, decide when the session ends.
func setSessionCookie(c echo.Context, id string) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   IsSecureRequest(c.Request()),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie invalidates the cookie with an expiry in the past.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   IsSecureRequest(c.Request()),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// IsSecureRequest reports whether the client connection is encrypted,
// either directly or at a TLS-terminating proxy.
func IsSecureRequest(req *http.Request) bool {
	return req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}
