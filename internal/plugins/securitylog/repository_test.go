package securitylog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// newTestDB opens an in-memory SQLite database with the tables the security
// log reads.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := []string{
		`CREATE TABLE users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL
		)`,
		`CREATE TABLE security_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			user_id TEXT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NULL,
			details TEXT NULL,
			created_at DATETIME NOT NULL
		)`,
		`INSERT INTO users (id, display_name) VALUES ('u-1', 'Alice Admin')`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("applying schema: %v", err)
		}
	}
	return db
}

func TestRepository_LogAndList(t *testing.T) {
	repo := NewSecurityEventRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	events := []*SecurityEvent{
		{EventType: EventLoginFailed, IPAddress: "10.0.0.7", Details: map[string]any{"username": "alice"}, CreatedAt: base},
		{EventType: EventLoginSuccess, UserID: "u-1", IPAddress: "10.0.0.7", UserAgent: "curl/8", CreatedAt: base.Add(time.Minute)},
		{EventType: EventCSRFRejected, IPAddress: "10.0.0.9", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := repo.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected ID assigned")
		}
	}

	got, total, err := repo.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("expected 3 events, got %d/%d", len(got), total)
	}
	if got[0].EventType != EventCSRFRejected || got[2].EventType != EventLoginFailed {
		t.Errorf("expected newest first, got %s ... %s", got[0].EventType, got[2].EventType)
	}
	if got[1].UserName != "Alice Admin" || got[1].UserAgent != "curl/8" {
		t.Errorf("expected joined display name, got %+v", got[1])
	}
	if got[2].UserID != "" || got[2].Details["username"] != "alice" {
		t.Errorf("expected anonymous event with details, got %+v", got[2])
	}

	filtered, total, err := repo.List(ctx, EventLoginSuccess, 10, 0)
	if err != nil || total != 1 || len(filtered) != 1 || filtered[0].UserID != "u-1" {
		t.Errorf("filtered list: %+v, %d, %v", filtered, total, err)
	}

	page, total, err := repo.List(ctx, "", 2, 2)
	if err != nil || total != 3 || len(page) != 1 {
		t.Errorf("second page: %d events, total %d, %v", len(page), total, err)
	}
}

func TestRepository_GetStats(t *testing.T) {
	repo := NewSecurityEventRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

	seed := []SecurityEvent{
		{EventType: EventLoginFailed, IPAddress: "10.0.0.1", CreatedAt: now.Add(-48 * time.Hour)},
		{EventType: EventLoginFailed, IPAddress: "10.0.0.1", CreatedAt: now.Add(-time.Hour)},
		{EventType: EventLoginFailed, IPAddress: "10.0.0.2", CreatedAt: now.Add(-30 * time.Minute)},
		{EventType: EventLoginSuccess, UserID: "u-1", IPAddress: "10.0.0.2", CreatedAt: now.Add(-20 * time.Minute)},
		{EventType: EventLoginThrottled, IPAddress: "10.0.0.3", CreatedAt: now.Add(-10 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Log(ctx, &seed[i]); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	stats, err := repo.GetStats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := SecurityStats{TotalEvents: 5, FailedLogins24h: 2, SuccessfulLogins24h: 1, Throttled24h: 1, UniqueIPs24h: 3}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}
}
