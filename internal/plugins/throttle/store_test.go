package throttle

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// --- File store ---

func TestFileStore_CreatesDirectoryAndPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "throttle")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory created, err=%v", err)
	}

	now := t0
	s := newTestService(store, &now)
	ctx := context.Background()
	for i := 0; i < DefaultMaxAttempts; i++ {
		s.RecordFailure(ctx, "alice")
	}

	raw, err := os.ReadFile(filepath.Join(dir, Key("alice")+".json"))
	if err != nil {
		t.Fatalf("reading window file: %v", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		t.Errorf("expected JSON record, got %q", raw)
	}

	// A second store on the same directory sees the same state.
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if newTestService(reopened, &now).IsAllowed(ctx, "alice") {
		t.Fatal("expected blocked state to survive a new store instance")
	}

	s.Clear(ctx, "alice")
	if info, err := os.Stat(filepath.Join(dir, Key("alice")+".json")); err != nil || info.Size() != 0 {
		t.Errorf("expected window file emptied, err=%v", err)
	}
	if !s.IsAllowed(ctx, "alice") {
		t.Error("expected allowed after clear")
	}
}

func TestFileStore_DeleteKeepsInodeForOpenWriters(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key := Key("alice")

	if err := store.Update(ctx, key, time.Minute, func(w *Window) {
		w.Attempts = append(w.Attempts, 1)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// A writer that opened the file before the clear.
	f, err := os.OpenFile(filepath.Join(dir, key+".json"), os.O_RDWR, 0o600)
	if err != nil {
		t.Fatalf("opening window file: %v", err)
	}
	defer f.Close()

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.WriteAt([]byte(`{"attempts":[7]}`), 0); err != nil {
		t.Fatalf("writing through open handle: %v", err)
	}

	w, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 1 || w.Attempts[0] != 7 {
		t.Errorf("expected the late write to be visible, got %v", w.Attempts)
	}
}

func TestFileStore_LoadMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	w, err := store.Load(context.Background(), Key("nobody"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 0 {
		t.Errorf("expected empty window, got %v", w.Attempts)
	}
	if err := store.Delete(context.Background(), Key("nobody")); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileStore_ConcurrentUpdates(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key := Key("alice")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			err := store.Update(ctx, key, time.Minute, func(w *Window) {
				w.Attempts = append(w.Attempts, ts)
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	w, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 25 {
		t.Errorf("expected 25 attempts without lost updates, got %d", len(w.Attempts))
	}
}

// --- Redis store ---

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

func TestRedisStore_WindowLifecycle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	now := t0
	s := newTestService(NewRedisStore(rdb), &now)
	ctx := context.Background()

	for i := 0; i < DefaultMaxAttempts; i++ {
		s.RecordFailure(ctx, "alice")
	}
	if s.IsAllowed(ctx, "alice") {
		t.Fatal("expected blocked after 5 failures")
	}

	rkey := redisKeyPrefix + Key("alice")
	if ttl := mr.TTL(rkey); ttl != DefaultWindow {
		t.Errorf("expected TTL %v, got %v", DefaultWindow, ttl)
	}

	s.Clear(ctx, "alice")
	if mr.Exists(rkey) {
		t.Error("expected key deleted on clear")
	}
	if !s.IsAllowed(ctx, "alice") {
		t.Error("expected allowed after clear")
	}
}

func TestRedisStore_ConcurrentUpdates(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()
	key := Key("alice")

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			err := store.Update(ctx, key, time.Minute, func(w *Window) {
				w.Attempts = append(w.Attempts, ts)
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	w, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != writers {
		t.Errorf("expected %d attempts without lost updates, got %d", writers, len(w.Attempts))
	}
}

func TestRedisStore_AppendPrunesAndCaps(t *testing.T) {
	mr, rdb := newTestRedis(t)
	now := t0
	s := newTestService(NewRedisStore(rdb), &now)
	ctx := context.Background()

	for i := 0; i < 3*DefaultMaxAttempts; i++ {
		s.RecordFailure(ctx, "alice")
	}
	w, err := s.store.Load(ctx, Key("alice"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 2*DefaultMaxAttempts {
		t.Errorf("expected record capped at %d, got %d", 2*DefaultMaxAttempts, len(w.Attempts))
	}

	now = now.Add(DefaultWindow + time.Second)
	s.RecordFailure(ctx, "alice")
	w, err = s.store.Load(ctx, Key("alice"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 1 || w.Attempts[0] != now.Unix() {
		t.Errorf("expected only the fresh attempt, got %v", w.Attempts)
	}
	if ttl := mr.TTL(redisKeyPrefix + Key("alice")); ttl != DefaultWindow {
		t.Errorf("expected TTL %v, got %v", DefaultWindow, ttl)
	}
}

func TestRedisStore_UnavailableFailsOpen(t *testing.T) {
	mr, rdb := newTestRedis(t)
	now := t0
	s := newTestService(NewRedisStore(rdb), &now)
	mr.Close()

	if !s.IsAllowed(context.Background(), "alice") {
		t.Fatal("expected fail-open when Redis is down")
	}
}
