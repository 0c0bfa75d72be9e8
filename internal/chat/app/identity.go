package app

import "context"

// IdentityProvider returns the authenticated caller
type IdentityProvider interface {
	// CurrentUserID returns "" when nobody is signed in.
	CurrentUserID(ctx context.Context) string
}

// StaticIdentity a fixed caller id
type StaticIdentity string

// CurrentUserID implements IdentityProvider
func (s StaticIdentity) CurrentUserID(context.Context) string {
	return string(s)
}
