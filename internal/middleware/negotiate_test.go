package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
)

func newContext(method, path string, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    Variant
	}{
		{"api path", "/api/session", nil, VariantJSON},
		{"api root", "/api", nil, VariantJSON},
		{"apiary is not api", "/apiary", nil, VariantHTML},
		{"xhr", "/admin/permissions", map[string]string{"X-Requested-With": "XMLHttpRequest"}, VariantJSON},
		{"accept json", "/admin/permissions", map[string]string{"Accept": "application/json"}, VariantJSON},
		{"accept html first", "/admin", map[string]string{"Accept": "text/html,application/json"}, VariantHTML},
		{"htmx", "/admin", map[string]string{"HX-Request": "true"}, VariantHTMX},
		{"boosted htmx is a page load", "/admin", map[string]string{"HX-Request": "true", "HX-Boosted": "true"}, VariantHTML},
		{"json beats htmx", "/admin", map[string]string{"HX-Request": "true", "Accept": "application/json"}, VariantJSON},
		{"plain browser", "/", nil, VariantHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(http.MethodGet, tt.path, tt.headers)
			if got := Negotiate(c); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestWriteError_AuthenticationRequired(t *testing.T) {
	err := apperror.NewAuthenticationRequired()

	c, rec := newContext(http.MethodGet, "/api/me/permissions", nil)
	_ = WriteError(c, err)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("json: expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if jsonErr := json.Unmarshal(rec.Body.Bytes(), &body); jsonErr != nil {
		t.Fatalf("decoding body: %v", jsonErr)
	}
	if body["error"] != apperror.TypeAuthenticationRequired || body["message"] != "authentication required" {
		t.Errorf("unexpected body %v", body)
	}

	c, rec = newContext(http.MethodGet, "/admin", map[string]string{"HX-Request": "true"})
	_ = WriteError(c, err)
	if rec.Header().Get("HX-Redirect") != LoginPath {
		t.Errorf("htmx: expected HX-Redirect %s, got %q", LoginPath, rec.Header().Get("HX-Redirect"))
	}

	c, rec = newContext(http.MethodGet, "/admin", nil)
	_ = WriteError(c, err)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != LoginPath {
		t.Errorf("html: expected 303 to %s, got %d %q", LoginPath, rec.Code, rec.Header().Get("Location"))
	}
}

func TestWriteError_StatusAndMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"access denied", apperror.NewAccessDenied(), http.StatusForbidden, "access denied"},
		{"csrf", apperror.NewCSRFRejected(), apperror.StatusCSRFRejected, "invalid security token"},
		{"throttled", apperror.NewThrottled(), http.StatusTooManyRequests, "too many failed attempts, please try again later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/api/anything", nil)
			_ = WriteError(c, tt.err)
			if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.msg) {
				t.Errorf("json: expected %d %q, got %d %s", tt.code, tt.msg, rec.Code, rec.Body.String())
			}

			c, rec = newContext(http.MethodPost, "/admin/roles/hr/permissions", nil)
			_ = WriteError(c, tt.err)
			if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.msg) {
				t.Errorf("html: expected %d %q, got %d", tt.code, tt.msg, rec.Code)
			}
			if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/html") {
				t.Errorf("html: unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
			}
		})
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/session", nil)
	_ = WriteError(c, apperror.NewStoreUnavailable(errors.New("dial tcp 10.0.0.5:6379: connection refused")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "6379") {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}

	c, rec = newContext(http.MethodGet, "/api/session", nil)
	_ = WriteError(c, errors.New("raw failure"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "raw failure") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRedirect(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/login", map[string]string{"HX-Request": "true"})
	_ = Redirect(c, "/")
	if rec.Code != http.StatusNoContent || rec.Header().Get("HX-Redirect") != "/" {
		t.Errorf("htmx: got %d %q", rec.Code, rec.Header().Get("HX-Redirect"))
	}

	c, rec = newContext(http.MethodPost, "/login", nil)
	_ = Redirect(c, "/")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("html: got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(60, 2)
	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("expected burst of 2 allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Error("expected third immediate request refused")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("expected other IP unaffected")
	}
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	now := l.now()
	l.now = func() time.Time { return now }
	l.Allow("10.0.0.1")

	now = now.Add(11 * time.Minute)
	l.Sweep()
	if len(l.entries) != 0 {
		t.Errorf("expected idle bucket dropped, have %d", len(l.entries))
	}
}
