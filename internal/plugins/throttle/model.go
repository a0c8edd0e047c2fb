// Package throttle limits repeated failed logins per identifier with a
// sliding window of failure timestamps kept in a pluggable store.
package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Window is the persisted record for one login identifier: the Unix-second
// timestamps of recent failures, oldest first.
type Window struct {
	Attempts []int64 `json:"attempts"`
}

// countSince returns the number of attempts strictly after cutoff.
func (w *Window) countSince(cutoff int64) int {
	n := 0
	for _, ts := range w.Attempts {
		if ts > cutoff {
			n++
		}
	}
	return n
}

// prune drops attempts at or before cutoff and keeps at most the newest keep.
func (w *Window) prune(cutoff int64, keep int) {
	kept := w.Attempts[:0]
	for _, ts := range w.Attempts {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	if keep > 0 && len(kept) > keep {
		kept = kept[len(kept)-keep:]
	}
	w.Attempts = kept
}

// oldestSince returns the earliest attempt after cutoff, or 0.
func (w *Window) oldestSince(cutoff int64) int64 {
	for _, ts := range w.Attempts {
		if ts > cutoff {
			return ts
		}
	}
	return 0
}

// Key derives the storage key for a login identifier. Identifiers are
// trimmed and lower-cased so "Alice " and "alice" share a window, then
// hashed so raw usernames never reach the store or file names.
func Key(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])
}
