// Package csrf binds an anti-forgery token to each session and checks it on
// every state-changing request.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/middleware"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// tokenLength is the number of random bytes in a token (32 bytes = 64 hex chars).
const tokenLength = 32

// Guard issues, verifies and rotates session-bound CSRF tokens.
type Guard struct {
	sessions *session.Manager
}

// NewGuard creates a guard that persists tokens through the session manager.
func NewGuard(sessions *session.Manager) *Guard {
	return &Guard{sessions: sessions}
}

// Token returns the session's token, generating and saving one on first use.
// Repeated calls return the same value until Rotate.
func (g *Guard) Token(ctx context.Context, s *session.Session) (string, error) {
	if s.CSRFToken != "" {
		return s.CSRFToken, nil
	}
	return g.Rotate(ctx, s)
}

// Rotate replaces the session's token. The previous token stops verifying.
func (g *Guard) Rotate(ctx context.Context, s *session.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating csrf token: %w", err))
	}
	s.CSRFToken = token
	if err := g.sessions.Save(ctx, s); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether a request with the given method and supplied token
// may proceed. Non-mutating methods always pass. Mutating methods need a
// stored token and an identical supplied one.
func Verify(method string, s *session.Session, supplied string) bool {
	if !middleware.IsMutatingMethod(method) {
		return true
	}
	if s == nil || s.CSRFToken == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.CSRFToken)) == 1
}

// generateToken generates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
