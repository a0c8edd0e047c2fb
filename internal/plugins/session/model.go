// Package session owns the authenticated session's lifecycle: loading it
// from the server-side store, binding an identity at login, enforcing the
// idle and absolute timers on every request, and destroying it.
//
// A *Session is an explicit value handed to every call; nothing here keeps
// per-request state in package variables.
package session

import "time"

// State is the lifecycle position of a session within a request.
type State int

const (
	// StateNew is an anonymous session that has not been established.
	StateNew State = iota

	// StateActive is a session bound to an authenticated subject.
	StateActive

	// StateDestroyed is terminal. A fresh session must be started.
	StateDestroyed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Subject is the identity bound to a session by Establish.
type Subject struct {
	ID          string
	Username    string
	DisplayName string
	Role        string
	Department  string
}

// Session is the server-side session record. ID is the opaque identifier
// carried in the cookie and is never serialized into the record itself.
type Session struct {
	ID string `json:"-"`

	SubjectID   string `json:"subject_id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Department  string `json:"department,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	CSRFToken string `json:"csrf_token,omitempty"`

	// Pending second-factor state: the password check passed for this
	// subject but the one-time code has not been verified yet.
	PendingSubjectID string    `json:"pending_subject_id,omitempty"`
	PendingUsername  string    `json:"pending_username,omitempty"`
	PendingSince     time.Time `json:"pending_since,omitempty"`

	state State
	saved bool
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// IsAnonymous reports whether no subject is bound. Anonymous sessions carry
// no authorization.
func (s *Session) IsAnonymous() bool {
	return s == nil || s.SubjectID == "" || s.state != StateActive
}

// HasPendingSecondFactor reports whether a login is waiting on a one-time code.
func (s *Session) HasPendingSecondFactor() bool {
	return s != nil && s.PendingSubjectID != ""
}

// ClearPending drops any half-finished second-factor exchange.
func (s *Session) ClearPending() {
	s.PendingSubjectID = ""
	s.PendingUsername = ""
	s.PendingSince = time.Time{}
}

// Persisted reports whether the record exists in the store under ID.
func (s *Session) Persisted() bool {
	return s.saved
}

// clear wipes identity, timers, token and pending state in place.
func (s *Session) clear() {
	*s = Session{ID: s.ID, state: s.state, saved: s.saved}
}
