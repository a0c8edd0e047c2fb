// Package totp checks six-digit time-based one-time codes (RFC 6238) against
// a user's Base32 shared secret. Code generation follows RFC 4226 HOTP with
// HMAC-SHA1 through github.com/pquerna/otp.
package totp

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second

	// DefaultSkew is the number of steps accepted either side of the current
	// one, tolerating clock drift between server and authenticator.
	DefaultSkew = 3

	codeDigits = 6
)

// ErrInvalidSecret is returned for an empty or undecodable secret.
var ErrInvalidSecret = errors.New("totp: invalid secret")

var hotpOpts = hotp.ValidateOpts{
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Verifier validates codes within a window of ±Skew time steps.
type Verifier struct {
	skew int
	now  func() time.Time
}

// NewVerifier creates a verifier. A negative skew falls back to DefaultSkew.
func NewVerifier(skew int) *Verifier {
	if skew < 0 {
		skew = DefaultSkew
	}
	return &Verifier{skew: skew, now: time.Now}
}

// Verify checks code against secret at the current time.
func (v *Verifier) Verify(secret, code string) bool {
	return v.VerifyAt(secret, code, v.now())
}

// VerifyAt checks code against secret as if the clock read t. Every counter
// in the window is compared so the result does not leak which step matched.
func (v *Verifier) VerifyAt(secret, code string, t time.Time) bool {
	secret = NormalizeSecret(secret)
	if secret == "" {
		return false
	}
	code = normalizeCode(code)
	if len(code) != codeDigits {
		return false
	}

	counter := Counter(t)
	matched := false
	for offset := -v.skew; offset <= v.skew; offset++ {
		c := counter + int64(offset)
		if c < 0 {
			continue
		}
		expected, err := Code(secret, uint64(c))
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = true
		}
	}
	return matched
}

// Code returns the six-digit HOTP value for secret at counter.
func Code(secret string, counter uint64) (string, error) {
	secret = NormalizeSecret(secret)
	if secret == "" {
		return "", ErrInvalidSecret
	}
	code, err := hotp.GenerateCodeCustom(secret, counter, hotpOpts)
	if err != nil {
		return "", ErrInvalidSecret
	}
	return code, nil
}

// Counter returns the TOTP step for t.
func Counter(t time.Time) int64 {
	return t.Unix() / int64(Period/time.Second)
}

// NormalizeSecret upper-cases the secret and drops every character outside
// the Base32 alphabet, including spaces, dashes and padding.
func NormalizeSecret(secret string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '2' && r <= '7':
			return r
		default:
			return -1
		}
	}, secret)
}

// normalizeCode keeps only ASCII digits.
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
}
