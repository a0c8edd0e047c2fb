package totp

import (
	"strings"
	"time"
)

// Diagnostic explains why a code was or was not accepted. It is only shown to
// administrators holding the diagnostics permission.
type Diagnostic struct {
	ServerTime    time.Time `json:"server_time"`
	Counter       int64     `json:"counter"`
	SecretPreview string    `json:"secret_preview"`
	SecretValid   bool      `json:"secret_valid"`
	Submitted     string    `json:"submitted"`

	Current  string `json:"current"`
	Previous string `json:"previous"`
	Next     string `json:"next"`

	MatchesCurrent  bool `json:"matches_current"`
	MatchesPrevious bool `json:"matches_previous"`
	MatchesNext     bool `json:"matches_next"`
	Accepted        bool `json:"accepted"`
}

// Diagnose reports the codes expected around t next to the submitted one.
func (v *Verifier) Diagnose(secret, code string, t time.Time) Diagnostic {
	normalized := NormalizeSecret(secret)
	counter := Counter(t)
	d := Diagnostic{
		ServerTime:    t.UTC(),
		Counter:       counter,
		SecretPreview: MaskSecret(normalized),
		Submitted:     normalizeCode(code),
	}

	current, err := Code(normalized, uint64(counter))
	if err != nil {
		return d
	}
	d.SecretValid = true
	d.Current = current
	d.Previous, _ = Code(normalized, uint64(counter-1))
	d.Next, _ = Code(normalized, uint64(counter+1))

	d.MatchesCurrent = d.Submitted == d.Current
	d.MatchesPrevious = d.Submitted == d.Previous
	d.MatchesNext = d.Submitted == d.Next
	d.Accepted = v.VerifyAt(secret, code, t)
	return d
}

// MaskSecret shows the first and last four characters of a long secret and
// hides short ones entirely.
func MaskSecret(secret string) string {
	if len(secret) > 10 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	}
	return strings.Repeat("*", len(secret))
}
