package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/hrportal/internal/apperror"
)

// idBytes is the number of random bytes in a session ID.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const idBytes = 32

// Defaults applied when Config leaves a timer unset.
const (
	DefaultIdleTimeout      = 1800 * time.Second
	DefaultAbsoluteLifetime = 28800 * time.Second
)

// ErrDestroyed is returned when a destroyed session is reused.
var ErrDestroyed = errors.New("session destroyed")

// Config holds the lifecycle timers.
type Config struct {
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager implements the session lifecycle on top of a Store. It keeps no
// per-request state; every call operates on the *Session it is given.
type Manager struct {
	store    Store
	idle     time.Duration
	absolute time.Duration
	now      func() time.Time
}

// NewManager creates a lifecycle manager with the given store and timers.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.AbsoluteLifetime <= 0 {
		cfg.AbsoluteLifetime = DefaultAbsoluteLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:    store,
		idle:     cfg.IdleTimeout,
		absolute: cfg.AbsoluteLifetime,
		now:      cfg.Now,
	}
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// New returns a fresh anonymous session with a random ID. Nothing is
// written until the session is saved.
func (m *Manager) New() (*Session, error) {
	id, err := generateID()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating session id: %w", err))
	}
	return &Session{ID: id, state: StateNew}, nil
}

// Load fetches the session for the cookie value. A missing cookie or an
// unknown ID yields a fresh anonymous session; a store failure is fatal.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return m.New()
	}

	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return m.New()
	}
	if err != nil {
		return nil, apperror.NewStoreUnavailable(fmt.Errorf("loading session: %w", err))
	}

	sess.saved = true
	if sess.SubjectID != "" {
		sess.state = StateActive
	} else {
		sess.state = StateNew
	}
	return sess, nil
}

// Save writes the session under its current ID.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s.state == StateDestroyed {
		return apperror.NewInternal(ErrDestroyed)
	}
	if err := m.store.Set(ctx, s.ID, s, m.absolute); err != nil {
		return apperror.NewStoreUnavailable(fmt.Errorf("saving session: %w", err))
	}
	s.saved = true
	return nil
}

// Establish binds an authenticated identity to the session. The session ID
// is regenerated and the old record removed so a pre-login ID planted by an
// attacker never becomes authenticated.
func (m *Manager) Establish(ctx context.Context, s *Session, subject Subject) error {
	if s.state == StateDestroyed {
		return apperror.NewInternal(ErrDestroyed)
	}

	if s.saved {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return apperror.NewStoreUnavailable(fmt.Errorf("removing pre-login session: %w", err))
		}
		s.saved = false
	}

	id, err := generateID()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("generating session id: %w", err))
	}

	now := m.now().UTC()
	s.ID = id
	s.SubjectID = subject.ID
	s.Username = subject.Username
	s.DisplayName = subject.DisplayName
	s.Role = subject.Role
	s.Department = subject.Department
	s.CreatedAt = now
	s.LastActivityAt = now
	s.ClearPending()
	s.state = StateActive

	return m.Save(ctx, s)
}

// Expired reports whether an active session has outlived either timer at now.
func (m *Manager) Expired(s *Session, now time.Time) bool {
	if s.state != StateActive {
		return false
	}
	return now.Sub(s.LastActivityAt) > m.idle || now.Sub(s.CreatedAt) > m.absolute
}

// Touch applies the timers to an authenticated session. When either limit
// has passed the session is destroyed and false is returned; the caller
// continues the request as anonymous. Otherwise the activity timestamp is
// refreshed. Anonymous sessions are left untouched.
func (m *Manager) Touch(ctx context.Context, s *Session, now time.Time) (bool, error) {
	switch s.state {
	case StateDestroyed:
		return false, nil
	case StateNew:
		return true, nil
	}

	if m.Expired(s, now) {
		slog.Info("session expired",
			slog.String("subject_id", s.SubjectID),
			slog.Duration("idle", now.Sub(s.LastActivityAt)),
			slog.Duration("age", now.Sub(s.CreatedAt)),
		)
		if err := m.Destroy(ctx, s); err != nil {
			return false, err
		}
		return false, nil
	}

	s.LastActivityAt = now.UTC()
	if err := m.Save(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy removes the record and clears all state. Calling it again is a
// no-op.
func (m *Manager) Destroy(ctx context.Context, s *Session) error {
	if s.saved && s.ID != "" {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return apperror.NewStoreUnavailable(fmt.Errorf("destroying session: %w", err))
		}
	}
	s.clear()
	s.ID = ""
	s.saved = false
	s.state = StateDestroyed
	return nil
}

// generateID creates a cryptographically random hex-encoded session ID.
func generateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
