// Package app is the composition root. It owns the shared infrastructure
// (DB pool, optional Redis client, Echo instance), builds the security core
// from configuration, and wires every plugin onto the router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/config"
	"github.com/keyxmakerx/hrportal/internal/middleware"
	"github.com/keyxmakerx/hrportal/internal/plugins/csrf"
	"github.com/keyxmakerx/hrportal/internal/plugins/securitylog"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
	"github.com/keyxmakerx/hrportal/internal/plugins/throttle"
	"github.com/keyxmakerx/hrportal/internal/plugins/totp"
	"github.com/keyxmakerx/hrportal/internal/templates/layouts"
)

// ServiceName identifies the server in traces.
const ServiceName = "hrportal"

// App holds the shared dependencies and the Echo server. Created once in
// main; RegisterRoutes must be called before serving.
type App struct {
	Config *config.Config

	// DB is the MariaDB pool holding users, permissions and security events.
	DB *sql.DB

	// Redis backs sessions and throttle counters when configured; nil
	// otherwise.
	Redis *redis.Client

	Echo *echo.Echo

	sessions *session.Manager
	guard    *csrf.Guard
	throttle *throttle.Service
	verifier *totp.Verifier
	events   securitylog.SecurityService
	recorder *securitylog.Recorder
}

// New builds the security core from cfg and installs the global middleware
// chain. It fails when a configured store backend cannot be opened.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	middleware.TrustedProxies(e, middleware.DefaultTrustedProxies)

	a := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}
	if err := a.buildSecurityCore(); err != nil {
		return nil, err
	}

	a.setupMiddleware()
	e.HTTPErrorHandler = a.errorHandler
	return a, nil
}

// buildSecurityCore creates the session manager, CSRF guard, login throttle,
// TOTP verifier and the security event recorder the hooks report to.
func (a *App) buildSecurityCore() error {
	sessionStore, err := a.sessionStore()
	if err != nil {
		return err
	}
	throttleStore, err := a.throttleStore()
	if err != nil {
		return err
	}

	a.sessions = session.NewManager(sessionStore, session.Config{
		IdleTimeout:      a.Config.Session.IdleTimeout,
		AbsoluteLifetime: a.Config.Session.AbsoluteLifetime,
	})
	a.guard = csrf.NewGuard(a.sessions)
	a.throttle = throttle.NewService(throttleStore, throttle.Config{
		MaxAttempts: a.Config.Throttle.MaxAttempts,
		Window:      a.Config.Throttle.Window,
	})
	a.verifier = totp.NewVerifier(a.Config.TOTP.Skew)
	a.events = securitylog.NewSecurityService(securitylog.NewSecurityEventRepository(a.DB))
	a.recorder = securitylog.NewRecorder(a.events)

	slog.Info("security core ready",
		slog.String("session_store", a.Config.Session.Store),
		slog.String("throttle_store", a.Config.Throttle.Store),
		slog.Duration("idle_timeout", a.Config.Session.IdleTimeout),
		slog.Duration("absolute_lifetime", a.Config.Session.AbsoluteLifetime),
		slog.Int("throttle_max_attempts", a.Config.Throttle.MaxAttempts),
		slog.Duration("throttle_window", a.Config.Throttle.Window),
	)
	return nil
}

func (a *App) sessionStore() (session.Store, error) {
	switch a.Config.Session.Store {
	case config.StoreRedis:
		if a.Redis == nil {
			return nil, errors.New("session store is redis but no redis client is configured")
		}
		return session.NewRedisStore(a.Redis), nil
	case config.StoreMemory:
		slog.Warn("using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", a.Config.Session.Store)
	}
}

func (a *App) throttleStore() (throttle.Store, error) {
	switch a.Config.Throttle.Store {
	case config.StoreRedis:
		if a.Redis == nil {
			return nil, errors.New("throttle store is redis but no redis client is configured")
		}
		return throttle.NewRedisStore(a.Redis), nil
	case config.StoreFile:
		fs, err := throttle.NewFileStore(a.Config.Throttle.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening throttle directory: %w", err)
		}
		return fs, nil
	case config.StoreMemory:
		return throttle.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown throttle store %q", a.Config.Throttle.Store)
	}
}

// setupMiddleware registers global middleware. Order matters: recovery is
// outermost, the session must be attached before the CSRF guard reads it.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))
	a.Echo.Use(session.Middleware(a.sessions, a.recorder.SessionExpired))
	a.Echo.Use(csrf.Protect(a.guard, a.recorder.CSRFRejected))

	middleware.LayoutInjector = injectLayout
}

// injectLayout publishes the signed-in user and CSRF token to templates.
func injectLayout(c echo.Context, ctx context.Context) context.Context {
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))

	sess := session.FromContext(c)
	if sess == nil || sess.IsAnonymous() {
		return layouts.SetIsAuthenticated(ctx, false)
	}

	name := sess.DisplayName
	if name == "" {
		name = sess.Username
	}
	ctx = layouts.SetIsAuthenticated(ctx, true)
	ctx = layouts.SetUserID(ctx, sess.SubjectID)
	ctx = layouts.SetUserName(ctx, name)
	return layouts.SetRole(ctx, sess.Role)
}

// errorHandler maps every error to the negotiated rejection response. Only
// safe messages reach the client; causes of 5xx errors are logged.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		if appErr.Code >= http.StatusInternalServerError {
			slog.Error("request failed",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		err = fromHTTPError(echoErr)
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if werr := middleware.WriteError(c, err); werr != nil {
		slog.Warn("writing error response", slog.Any("error", werr))
	}
}

// fromHTTPError converts Echo's router and middleware errors (404, 405, 429
// from the IP limiter) into the AppError shape.
func fromHTTPError(he *echo.HTTPError) *apperror.AppError {
	msg, ok := he.Message.(string)
	if !ok || msg == "" || he.Code >= http.StatusInternalServerError {
		msg = http.StatusText(he.Code)
	}

	errType := "http_error"
	switch he.Code {
	case http.StatusNotFound:
		errType = "not_found"
	case http.StatusMethodNotAllowed:
		errType = "method_not_allowed"
	case http.StatusTooManyRequests:
		errType = "rate_limited"
	case http.StatusBadRequest:
		errType = "bad_request"
	}
	return &apperror.AppError{Code: he.Code, Type: errType, Message: msg}
}

// Handler returns the root HTTP handler wrapped with OpenTelemetry
// instrumentation. Spans go to the global provider; without one configured
// they are dropped.
func (a *App) Handler() http.Handler {
	return otelhttp.NewHandler(a.Echo, ServiceName)
}

// Server returns an http.Server for the configured port.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
