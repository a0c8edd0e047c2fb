package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/middleware"
)

// RegisterRoutes sets up the login exchange on the given Echo instance.
// Login routes are public; RequireAuth is exported separately for other
// plugins to use on their route groups.
//
// Credential POSTs share one per-IP token bucket so a single client cannot
// spray many usernames; the per-username throttle inside the service
// handles attacks on one account.
func RegisterRoutes(e *echo.Echo, h *Handler, limiter *middleware.IPRateLimiter) {
	limit := limiter.Middleware()

	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, limit)
	e.GET("/login/verify", h.VerifyForm)
	e.POST("/login/verify", h.Verify, limit)

	e.POST("/logout", h.Logout)
	e.GET("/api/session", h.Session)
}
