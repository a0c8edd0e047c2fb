package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout data (signed-in user, role, CSRF token) from
// the Echo context into the context.Context templates read. Set once at
// startup by internal/app so this package never imports plugin types.
var LayoutInjector func(echo.Context, context.Context) context.Context

// IsHTMX reports whether the request is an HTMX fragment request. Boosted
// navigations (hx-boost) expect full pages and are treated as plain HTML.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// Render writes a templ component with the given status code, after running
// the LayoutInjector if one is registered.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()

	// Inject layout data from Echo context into Go context for Templ.
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}
