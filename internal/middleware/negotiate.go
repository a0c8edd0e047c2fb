package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/templates/pages"
)

// Variant is the response shape a client expects for rejections and
// redirects.
type Variant int

const (
	// VariantHTML is a regular browser navigation.
	VariantHTML Variant = iota

	// VariantJSON is an API or script client.
	VariantJSON

	// VariantHTMX is an HTMX partial request that navigates via HX-Redirect.
	VariantHTMX
)

// String returns the variant name for logs.
func (v Variant) String() string {
	switch v {
	case VariantJSON:
		return "json"
	case VariantHTMX:
		return "htmx"
	default:
		return "html"
	}
}

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/login"

// Negotiate classifies the request. JSON wins when the path is under /api/,
// the request was made by a script, or Accept prefers application/json.
func Negotiate(c echo.Context) Variant {
	req := c.Request()
	path := req.URL.Path
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		return VariantJSON
	}
	if req.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return VariantJSON
	}
	if prefersJSON(req.Header.Get(echo.HeaderAccept)) {
		return VariantJSON
	}
	if IsHTMX(c) {
		return VariantHTMX
	}
	return VariantHTML
}

// prefersJSON reports whether application/json appears in Accept before any
// HTML type. Quality values are not weighed.
func prefersJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case echo.MIMEApplicationJSON:
			return true
		case echo.MIMETextHTML, "application/xhtml+xml":
			return false
		}
	}
	return false
}

// Redirect navigates the client to target: HX-Redirect for HTMX, 303 for
// browsers, and a JSON body naming the target for API clients.
func Redirect(c echo.Context, target string) error {
	switch Negotiate(c) {
	case VariantJSON:
		return c.JSON(http.StatusOK, map[string]string{"redirect": target})
	case VariantHTMX:
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	default:
		return c.Redirect(http.StatusSeeOther, target)
	}
}

// WriteError renders err in the negotiated variant. Authentication-required
// errors send browsers to the login page; everything else carries its own
// status code. Only the safe message is ever written.
func WriteError(c echo.Context, err error) error {
	code := apperror.SafeCode(err)
	msg := apperror.SafeMessage(err)
	errType := "internal_error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		errType = appErr.Type
	}

	variant := Negotiate(c)
	if variant == VariantJSON {
		return c.JSON(code, map[string]string{
			"error":   errType,
			"message": msg,
		})
	}

	if errType == apperror.TypeAuthenticationRequired {
		if variant == VariantHTMX {
			c.Response().Header().Set("HX-Redirect", LoginPath)
			return c.NoContent(http.StatusUnauthorized)
		}
		return c.Redirect(http.StatusSeeOther, LoginPath)
	}

	// The full error page replaces the body rather than a fragment target.
	if variant == VariantHTMX {
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	return Render(c, code, pages.ErrorPage(code, msg))
}
