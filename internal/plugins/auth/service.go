package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/csrf"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
	"github.com/keyxmakerx/hrportal/internal/plugins/throttle"
	"github.com/keyxmakerx/hrportal/internal/plugins/totp"
	"github.com/keyxmakerx/hrportal/internal/sanitize"
)

// argon2id parameters tuned for a self-hosted application running on
// modest hardware (2-4 CPU cores, 2-4 GB RAM). These follow OWASP
// recommendations for argon2id: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// AuthService defines the business logic contract for the login exchange.
// Handlers call these methods; they never touch the repository directly.
type AuthService interface {
	// Login checks a username and password against the throttle and the
	// user store. Every credential failure yields the same generic error.
	Login(ctx context.Context, sess *session.Session, input LoginInput) (*LoginResult, error)

	// VerifySecondFactor completes a login left pending by Login.
	VerifySecondFactor(ctx context.Context, sess *session.Session, code string) (*LoginResult, error)

	// Logout destroys the session.
	Logout(ctx context.Context, sess *session.Session) error

	// CreateUser provisions an account with an argon2id password hash.
	CreateUser(ctx context.Context, input CreateUserInput) (*User, error)

	// EnsureBootstrapAdmin creates the first super admin on an empty install.
	EnsureBootstrapAdmin(ctx context.Context, username, password string) error
}

// authService implements AuthService on the session, CSRF, throttle and
// TOTP components.
type authService struct {
	repo     UserRepository
	sessions *session.Manager
	guard    *csrf.Guard
	throttle *throttle.Service
	verifier *totp.Verifier

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, sessions *session.Manager, guard *csrf.Guard, limiter *throttle.Service, verifier *totp.Verifier) AuthService {
	return &authService{
		repo:     repo,
		sessions: sessions,
		guard:    guard,
		throttle: limiter,
		verifier: verifier,
	}
}

// errInvalidCredentials is the single answer to every credential failure.
func errInvalidCredentials() *apperror.AppError {
	return apperror.NewUnauthorized("invalid credentials")
}

// Login runs the password step. A blocked identifier is refused before the
// credentials are looked at and the refusal is not counted.
func (s *authService) Login(ctx context.Context, sess *session.Session, input LoginInput) (*LoginResult, error) {
	if sess == nil {
		return nil, apperror.NewMissingContext()
	}

	username := normalizeUsername(input.Username)
	if username == "" || input.Password == "" {
		return nil, errInvalidCredentials()
	}

	if !s.throttle.IsAllowed(ctx, username) {
		slog.Warn("login throttled", slog.String("key", throttle.Key(username)))
		return nil, apperror.NewThrottled()
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if !isNotFound(err) {
			return nil, apperror.NewStoreUnavailable(fmt.Errorf("finding user: %w", err))
		}
		// Spend the same hashing time as a real check so response timing
		// does not reveal which usernames exist.
		verifyPassword(input.Password, s.placeholderHash())
		s.throttle.RecordFailure(ctx, username)
		return nil, errInvalidCredentials()
	}

	if !verifyPassword(input.Password, user.PasswordHash) || !user.IsActive {
		s.throttle.RecordFailure(ctx, username)
		return nil, errInvalidCredentials()
	}

	if user.requiresSecondFactor() {
		sess.ClearPending()
		sess.PendingSubjectID = user.ID
		sess.PendingUsername = user.Username
		sess.PendingSince = s.sessions.Now().UTC()
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		slog.Info("password accepted, awaiting second factor",
			slog.String("user_id", user.ID),
		)
		return &LoginResult{Status: StatusSecondFactorRequired, User: user}, nil
	}

	return s.complete(ctx, sess, user)
}

// VerifySecondFactor checks the one-time code for the pending subject. A
// missing or stale pending state sends the caller back to the password step.
func (s *authService) VerifySecondFactor(ctx context.Context, sess *session.Session, code string) (*LoginResult, error) {
	if sess == nil {
		return nil, apperror.NewMissingContext()
	}
	if !sess.HasPendingSecondFactor() {
		return nil, apperror.NewAuthenticationRequired()
	}
	if s.sessions.Now().Sub(sess.PendingSince) > PendingTTL {
		if err := s.abandonPending(ctx, sess); err != nil {
			return nil, err
		}
		return nil, apperror.NewAuthenticationRequired()
	}

	username := sess.PendingUsername
	if !s.throttle.IsAllowed(ctx, username) {
		slog.Warn("second factor throttled", slog.String("key", throttle.Key(username)))
		return nil, apperror.NewThrottled()
	}

	user, err := s.repo.FindByID(ctx, sess.PendingSubjectID)
	if err != nil {
		if !isNotFound(err) {
			return nil, apperror.NewStoreUnavailable(fmt.Errorf("finding pending user: %w", err))
		}
		if err := s.abandonPending(ctx, sess); err != nil {
			return nil, err
		}
		return nil, apperror.NewAuthenticationRequired()
	}
	if !user.IsActive || !user.requiresSecondFactor() {
		if err := s.abandonPending(ctx, sess); err != nil {
			return nil, err
		}
		return nil, apperror.NewAuthenticationRequired()
	}

	if !s.verifier.Verify(*user.TOTPSecret, code) {
		s.throttle.RecordFailure(ctx, username)
		return nil, apperror.NewSecondFactorInvalid()
	}

	return s.complete(ctx, sess, user)
}

// complete binds user to the session: throttle cleared, ID regenerated,
// CSRF token rotated and last login stamped.
func (s *authService) complete(ctx context.Context, sess *session.Session, user *User) (*LoginResult, error) {
	s.throttle.Clear(ctx, user.Username)

	if err := s.sessions.Establish(ctx, sess, user.Subject()); err != nil {
		return nil, err
	}
	if _, err := s.guard.Rotate(ctx, sess); err != nil {
		return nil, err
	}

	// Update the user's last login timestamp (fire-and-forget, non-critical).
	if err := s.repo.UpdateLastLogin(ctx, user.ID, s.sessions.Now().UTC()); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return &LoginResult{Status: StatusAuthenticated, User: user}, nil
}

func (s *authService) abandonPending(ctx context.Context, sess *session.Session) error {
	sess.ClearPending()
	return s.sessions.Save(ctx, sess)
}

// Logout destroys the session record and clears its state.
func (s *authService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return apperror.NewMissingContext()
	}
	subjectID := sess.SubjectID
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		return err
	}
	if subjectID != "" {
		slog.Info("user logged out", slog.String("user_id", subjectID))
	}
	return nil
}

// CreateUser provisions an active account. Usernames are stored lower-cased.
func (s *authService) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	username := normalizeUsername(input.Username)
	if username == "" {
		return nil, apperror.NewValidation("username is required")
	}
	if len(input.Password) < 8 {
		return nil, apperror.NewValidation("password must be at least 8 characters")
	}
	if input.Role == "" {
		return nil, apperror.NewValidation("role is required")
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	displayName := sanitize.Text(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Role:         input.Role,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    s.sessions.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// EnsureBootstrapAdmin creates a super admin when no accounts exist yet.
// Without a configured password nothing is created.
func (s *authService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if username == "" || password == "" {
		slog.Warn("no users exist and no bootstrap admin is configured")
		return nil
	}

	_, err = s.CreateUser(ctx, CreateUserInput{
		Username:    username,
		DisplayName: "Administrator",
		Role:        bootstrapRole,
		Password:    password,
	})
	return err
}

// placeholderHash returns a hash of a random secret, computed once. Unknown
// usernames are checked against it.
func (s *authService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		secret := make([]byte, 16)
		_, _ = rand.Read(secret)
		s.dummyHash, _ = hashPassword(base64.RawStdEncoding.EncodeToString(secret))
	})
	return s.dummyHash
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash of the given password. The output
// format is: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
// This format is compatible with most argon2 libraries and allows self-
// contained verification without separate salt storage.
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash)

	return encoded, nil
}

// verifyPassword checks a plaintext password against an argon2id hash string.
// Returns true if the password matches.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expectedHash) == 0 {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1
}

// --- Helpers ---

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// isNotFound checks if an error is an apperror.NotFound type.
func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Code == 404
}
