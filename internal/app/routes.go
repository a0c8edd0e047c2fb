package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/middleware"
	"github.com/keyxmakerx/hrportal/internal/plugins/access"
	"github.com/keyxmakerx/hrportal/internal/plugins/auth"
	"github.com/keyxmakerx/hrportal/internal/plugins/securitylog"
	"github.com/keyxmakerx/hrportal/internal/templates/pages"
)

// RegisterRoutes wires the plugins and mounts their routes. It also creates
// the bootstrap super admin on an empty install, which is why it takes a
// context and can fail.
func (a *App) RegisterRoutes(ctx context.Context) error {
	e := a.Echo

	e.GET("/healthz", a.health)

	// --- Auth ---
	users := auth.NewUserRepository(a.DB)
	authService := auth.NewAuthService(users, a.sessions, a.guard, a.throttle, a.verifier)
	authHandler := auth.NewHandler(authService, a.guard, a.recorder)
	loginLimiter := middleware.NewIPRateLimiter(a.Config.Throttle.IPPerMinute, a.Config.Throttle.IPBurst)
	auth.RegisterRoutes(e, authHandler, loginLimiter)

	if err := authService.EnsureBootstrapAdmin(ctx, a.Config.Bootstrap.Username, a.Config.Bootstrap.Password); err != nil {
		return fmt.Errorf("bootstrapping admin account: %w", err)
	}

	// --- Access control ---
	accessService := access.NewAccessService(access.NewPermissionRepository(a.DB))
	accessHandler := access.NewHandler(accessService, a.recorder.RolePermissionsChanged)
	access.RegisterRoutes(e, accessHandler, accessService, a.recorder.AccessDenied)

	// --- Security log ---
	securityHandler := securitylog.NewHandler(a.events, a.recorder, users, a.verifier)
	securitylog.RegisterRoutes(e, securityHandler, accessService, a.recorder.AccessDenied)

	// --- Portal ---
	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.HomePage())
	}, auth.RequireAuth())

	return nil
}

// health reports whether the backing stores answer. Used by container
// health checks; no authentication.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if err := a.DB.PingContext(ctx); err != nil {
		status["status"], status["database"] = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}
	if a.Redis != nil {
		status["redis"] = "ok"
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			status["status"], status["redis"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}
