package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	in := &Session{
		SubjectID:      "u-7",
		Username:       "bob",
		Role:           "admin",
		CreatedAt:      t0,
		LastActivityAt: t0.Add(time.Minute),
		CSRFToken:      "tok",
	}
	if err := store.Set(ctx, "sid-1", in, 8*time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if ttl := mr.TTL(redisKeyPrefix + "sid-1"); ttl != 8*time.Hour {
		t.Errorf("expected TTL 8h, got %v", ttl)
	}

	out, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.ID != "sid-1" || out.Username != "bob" || out.CSRFToken != "tok" || !out.LastActivityAt.Equal(in.LastActivityAt) {
		t.Errorf("unexpected session: %+v", out)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_ManagerLifecycle(t *testing.T) {
	_, rdb := newTestRedis(t)
	now := t0
	m := NewManager(NewRedisStore(rdb), Config{IdleTimeout: time.Minute, AbsoluteLifetime: time.Hour})
	m.now = func() time.Time { return now }
	ctx := context.Background()

	sess, _ := m.New()
	if err := m.Establish(ctx, sess, alice()); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	loaded, err := m.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	alive, err := m.Touch(ctx, loaded, t0.Add(61*time.Second))
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if alive {
		t.Fatal("expected idle expiry after 61s with a 60s idle timeout")
	}
	if n := rdb.Exists(ctx, redisKeyPrefix+sess.ID).Val(); n != 0 {
		t.Error("expected expired session removed from Redis")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	mr.Close()

	if _, err := store.Get(context.Background(), "sid"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected connection error, got %v", err)
	}
}
