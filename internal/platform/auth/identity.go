package auth

import (
	"context"
	"errors"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "finitefield.org/arcade/internal/domain"
)

// ErrNoProfileSource is returned by Identity.Profile when the authenticator
// was built without a UserGetter.
var ErrNoProfileSource = errors.New("auth: no profile source configured")

// ProfileFunc loads the Firebase user record for uid.
type ProfileFunc func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

// Identity is the player proven by a verified Firebase ID token.
type Identity struct {
	UID         string
	Email       string
	DisplayName string

	profile ProfileFunc
	once    sync.Once
	record  *firebaseauth.UserRecord
	err     error
}

// Profile loads the player's Firebase user record once per request.
func (i *Identity) Profile(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.profile == nil {
		return nil, ErrNoProfileSource
	}
	i.once.Do(func() {
		i.record, i.err = i.profile(ctx, i.UID)
	})
	return i.record, i.err
}

// DomainUser is the user published to the rest of the app on sign-in.
func (i *Identity) DomainUser() domain.User {
	if i == nil {
		return domain.User{}
	}
	return domain.User{ID: i.UID, Email: i.Email, DisplayName: i.DisplayName}
}

type identityKey struct{}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
