package throttle

import (
	"context"
	"log/slog"
	"time"
)

// Defaults applied when Config leaves a limit unset.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 600 * time.Second
)

// Config holds the throttle limits.
type Config struct {
	MaxAttempts int
	Window      time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Service decides whether a login identifier may attempt authentication.
// Store read failures fail open: a broken store must not lock every user
// out. Write failures are logged and otherwise ignored.
type Service struct {
	store       Store
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewService creates a throttle on the given store.
func NewService(store Store, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		now:         cfg.Now,
	}
}

// cutoff is the newest timestamp that no longer counts.
func (s *Service) cutoff() int64 {
	return s.now().Add(-s.window).Unix()
}

// IsAllowed reports whether fewer than MaxAttempts failures were recorded
// for identifier within the window.
func (s *Service) IsAllowed(ctx context.Context, identifier string) bool {
	key := Key(identifier)
	w, err := s.store.Load(ctx, key)
	if err != nil {
		slog.Warn("throttle read failed, allowing attempt",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return true
	}
	return w.countSince(s.cutoff()) < s.maxAttempts
}

// RetryAfter returns how long until the oldest counted failure leaves the
// window, or zero when the identifier is not blocked.
func (s *Service) RetryAfter(ctx context.Context, identifier string) time.Duration {
	w, err := s.store.Load(ctx, Key(identifier))
	if err != nil {
		return 0
	}
	cutoff := s.cutoff()
	if w.countSince(cutoff) < s.maxAttempts {
		return 0
	}
	oldest := w.oldestSince(cutoff)
	remaining := time.Unix(oldest, 0).Add(s.window).Sub(s.now())
	if remaining < time.Second {
		return time.Second
	}
	return remaining.Round(time.Second)
}

// RecordFailure appends a failure at the current time. Stale entries are
// pruned and the record is capped at twice the threshold.
func (s *Service) RecordFailure(ctx context.Context, identifier string) {
	key := Key(identifier)
	now := s.now().Unix()
	cutoff := s.cutoff()
	keep := 2 * s.maxAttempts

	var err error
	if a, ok := s.store.(Appender); ok {
		err = a.Append(ctx, key, now, cutoff, keep, s.window)
	} else {
		err = s.store.Update(ctx, key, s.window, func(w *Window) {
			w.Attempts = append(w.Attempts, now)
			w.prune(cutoff, keep)
		})
	}
	if err != nil {
		slog.Error("throttle write failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return
	}
	slog.Debug("login failure recorded", slog.String("key", key))
}

// Clear forgets all failures for identifier.
func (s *Service) Clear(ctx context.Context, identifier string) {
	key := Key(identifier)
	if err := s.store.Delete(ctx, key); err != nil {
		slog.Error("throttle clear failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}
