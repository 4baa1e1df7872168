// Package auth exposes the identity capability consumed by the engine.
// Authentication itself happens elsewhere; the engine only needs a
// stable user identifier.
package auth

// Identity yields the current user's stable identifier. An empty string
// means no user is signed in; all engine writes fail fast on that.
type Identity interface {
	CurrentUserID() string
}

// StaticIdentity is a process-wide identity with a fixed user id,
// created once at startup and injected into the engine.
type StaticIdentity struct {
	UserID string
}

// CurrentUserID implements Identity.
func (s *StaticIdentity) CurrentUserID() string {
	return s.UserID
}

// Anonymous returns an identity with no signed-in user.
func Anonymous() *StaticIdentity {
	return &StaticIdentity{}
}
