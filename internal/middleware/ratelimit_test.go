package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(60, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("10.1.1.1") || !l.Allow("10.1.1.1") {
		t.Fatal("expected the burst to be allowed")
	}
	if l.Allow("10.1.1.1") {
		t.Error("expected third request in the same instant to be limited")
	}
	if !l.Allow("10.1.1.2") {
		t.Error("expected a different IP to have its own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("10.1.1.1") {
		t.Error("expected one token to refill after a second")
	}
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(10, 1)
	l.now = func() time.Time { return now }

	l.Allow("10.1.1.1")
	now = now.Add(11 * time.Minute)
	l.Allow("10.1.1.2")
	l.Sweep()

	if _, ok := l.entries["10.1.1.1"]; ok {
		t.Error("expected idle bucket to be dropped")
	}
	if _, ok := l.entries["10.1.1.2"]; !ok {
		t.Error("expected recent bucket to be kept")
	}
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	h := l.Middleware()(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e := echo.New()

	serve := func() (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		return rec, h(e.NewContext(req, rec))
	}

	if _, err := serve(); err != nil {
		t.Fatalf("first request: %v", err)
	}
	rec, err := serve()
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
