package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// --- Test Helpers ---

// mockStore implements Store with function fields so tests can inject
// failures. Nil fields fall through to an embedded MemoryStore.
type mockStore struct {
	mem      *MemoryStore
	loadFn   func(ctx context.Context, key string) (*Window, error)
	updateFn func(ctx context.Context, key string, ttl time.Duration, fn func(*Window)) error
}

func (m *mockStore) Load(ctx context.Context, key string) (*Window, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, key)
	}
	return m.mem.Load(ctx, key)
}

func (m *mockStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(*Window)) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, key, ttl, fn)
	}
	return m.mem.Update(ctx, key, ttl, fn)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.mem.Delete(ctx, key)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// newTestService returns a 5/600s throttle whose clock reads *now.
func newTestService(store Store, now *time.Time) *Service {
	s := NewService(store, Config{})
	s.now = func() time.Time { return *now }
	return s
}

// --- Key ---

func TestKey_NormalizesIdentifier(t *testing.T) {
	if Key("  Alice ") != Key("alice") {
		t.Error("expected case and whitespace to be ignored")
	}
	if Key("alice") == Key("bob") {
		t.Error("expected distinct keys for distinct users")
	}
	if k := Key("alice"); len(k) != 64 {
		t.Errorf("expected sha256 hex key, got %q", k)
	}
}

// --- Sliding window ---

func TestService_BlocksAtThresholdAndRecovers(t *testing.T) {
	now := t0
	s := newTestService(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < DefaultMaxAttempts; i++ {
		if !s.IsAllowed(ctx, "alice") {
			t.Fatalf("attempt %d blocked early", i+1)
		}
		s.RecordFailure(ctx, "alice")
	}
	if s.IsAllowed(ctx, "alice") {
		t.Fatal("expected identifier blocked after 5 failures")
	}
	if s.IsAllowed(ctx, "ALICE ") {
		t.Fatal("expected normalized identifier to share the window")
	}
	if !s.IsAllowed(ctx, "bob") {
		t.Fatal("expected unrelated identifier to be allowed")
	}

	now = t0.Add(599 * time.Second)
	if s.IsAllowed(ctx, "alice") {
		t.Fatal("expected still blocked inside the window")
	}

	now = t0.Add(601 * time.Second)
	if !s.IsAllowed(ctx, "alice") {
		t.Fatal("expected allowed once failures leave the window")
	}
}

func TestService_ClearResets(t *testing.T) {
	now := t0
	s := newTestService(NewMemoryStore(), &now)
	ctx := context.Background()

	for i := 0; i < DefaultMaxAttempts; i++ {
		s.RecordFailure(ctx, "alice")
	}
	s.Clear(ctx, "alice")
	if !s.IsAllowed(ctx, "alice") {
		t.Fatal("expected allowed after clear")
	}
	s.Clear(ctx, "never-seen")
}

func TestService_RecordIsBounded(t *testing.T) {
	now := t0
	store := NewMemoryStore()
	s := newTestService(store, &now)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		s.RecordFailure(ctx, "alice")
		now = now.Add(time.Second)
	}
	w, _ := store.Load(ctx, Key("alice"))
	if len(w.Attempts) != 2*DefaultMaxAttempts {
		t.Fatalf("expected %d entries, got %d", 2*DefaultMaxAttempts, len(w.Attempts))
	}
	if last := w.Attempts[len(w.Attempts)-1]; last != t0.Add(49*time.Second).Unix() {
		t.Errorf("expected newest entries kept, last=%d", last)
	}
}

func TestService_PrunesStaleOnWrite(t *testing.T) {
	now := t0
	store := NewMemoryStore()
	s := newTestService(store, &now)
	ctx := context.Background()

	s.RecordFailure(ctx, "alice")
	s.RecordFailure(ctx, "alice")
	now = t0.Add(700 * time.Second)
	s.RecordFailure(ctx, "alice")

	w, _ := store.Load(ctx, Key("alice"))
	if len(w.Attempts) != 1 || w.Attempts[0] != now.Unix() {
		t.Errorf("expected only the fresh attempt, got %v", w.Attempts)
	}
}

func TestService_RetryAfter(t *testing.T) {
	now := t0
	s := newTestService(NewMemoryStore(), &now)
	ctx := context.Background()

	if d := s.RetryAfter(ctx, "alice"); d != 0 {
		t.Errorf("expected 0 for unblocked identifier, got %v", d)
	}
	for i := 0; i < DefaultMaxAttempts; i++ {
		s.RecordFailure(ctx, "alice")
		now = now.Add(30 * time.Second)
	}
	// Oldest failure at t0 leaves the window at t0+600s; now is t0+150s.
	if d := s.RetryAfter(ctx, "alice"); d != 450*time.Second {
		t.Errorf("expected 450s, got %v", d)
	}
}

// --- Store failures ---

func TestService_ReadFailureFailsOpen(t *testing.T) {
	now := t0
	store := &mockStore{
		mem: NewMemoryStore(),
		loadFn: func(context.Context, string) (*Window, error) {
			return nil, errors.New("disk on fire")
		},
	}
	s := newTestService(store, &now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.RecordFailure(ctx, "alice")
	}
	if !s.IsAllowed(ctx, "alice") {
		t.Fatal("expected read failure to allow the attempt")
	}
}

func TestService_WriteFailureSwallowed(t *testing.T) {
	now := t0
	store := &mockStore{
		mem: NewMemoryStore(),
		updateFn: func(context.Context, string, time.Duration, func(*Window)) error {
			return errors.New("read-only filesystem")
		},
	}
	s := newTestService(store, &now)

	s.RecordFailure(context.Background(), "alice")
	if !s.IsAllowed(context.Background(), "alice") {
		t.Fatal("expected nothing recorded")
	}
}

// --- Concurrency ---

func TestService_ConcurrentFailuresAllCounted(t *testing.T) {
	stores := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{"memory", func(*testing.T) Store { return NewMemoryStore() }},
		{"file", func(t *testing.T) Store {
			fs, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return fs
		}},
		{"redis", func(t *testing.T) Store {
			_, rdb := newTestRedis(t)
			return NewRedisStore(rdb)
		}},
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			now := t0
			store := tt.store(t)
			s := NewService(store, Config{MaxAttempts: 50})
			s.now = func() time.Time { return now }
			ctx := context.Background()

			const failures = 40
			var wg sync.WaitGroup
			for i := 0; i < failures; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.RecordFailure(ctx, "alice")
				}()
			}
			wg.Wait()

			w, err := store.Load(ctx, Key("alice"))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(w.Attempts) != failures {
				t.Errorf("expected %d attempts, got %d", failures, len(w.Attempts))
			}
		})
	}
}

func TestService_ConcurrentFailuresBlockAtThreshold(t *testing.T) {
	_, rdb := newTestRedis(t)
	now := t0
	s := newTestService(NewRedisStore(rdb), &now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordFailure(ctx, "bob")
		}()
	}
	wg.Wait()

	w, err := s.store.Load(ctx, Key("bob"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.Attempts) != 2*DefaultMaxAttempts {
		t.Errorf("expected %d stored attempts, got %d", 2*DefaultMaxAttempts, len(w.Attempts))
	}
	if s.IsAllowed(ctx, "bob") {
		t.Error("expected bob blocked after parallel failures")
	}
}
