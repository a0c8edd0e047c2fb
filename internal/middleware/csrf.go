package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CSRFHeaderName is the header that HTMX and fetch() send the CSRF token in.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFFormField is the hidden form field name for traditional form posts.
const CSRFFormField = "csrf_token"

// csrfLegacyFormField is accepted for forms that predate CSRFFormField.
const csrfLegacyFormField = "_token"

// csrfContextKey holds the session's current token for templates.
const csrfContextKey = "csrf_token"

// SubmittedCSRFToken returns the token the client sent with the request.
// The header is checked first (HTMX/AJAX), then the form fields.
//
// HTMX integration reads the token from the meta tag rendered by the layout:
//
//	document.addEventListener('htmx:configRequest', function(evt) {
//	    const meta = document.querySelector('meta[name="csrf-token"]');
//	    if (meta) evt.detail.headers['X-CSRF-Token'] = meta.content;
//	});
func SubmittedCSRFToken(c echo.Context) string {
	req := c.Request()
	if token := req.Header.Get(CSRFHeaderName); token != "" {
		return token
	}
	if token := req.FormValue(CSRFFormField); token != "" {
		return token
	}
	return req.FormValue(csrfLegacyFormField)
}

// IsMutatingMethod reports whether the method changes server state and must
// carry a CSRF token.
func IsMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// SetCSRFToken stores the token in the Echo context for rendering.
func SetCSRFToken(c echo.Context, token string) {
	c.Set(csrfContextKey, token)
}

// GetCSRFToken retrieves the CSRF token from the Echo context.
// Use this in Templ templates to inject the token into forms.
func GetCSRFToken(c echo.Context) string {
	if token, ok := c.Get(csrfContextKey).(string); ok {
		return token
	}
	return ""
}
