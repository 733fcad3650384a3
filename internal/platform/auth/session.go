package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/signal"
)

var (
	// ErrNoIdentity is returned when sign-in is attempted without a verified identity.
	ErrNoIdentity = errors.New("auth: verified identity required")
	// ErrNotCurrentUser is returned when a verified identity is not the signed-in user.
	ErrNotCurrentUser = errors.New("auth: identity is not the signed-in user")
)

// Session owns the process-wide current user. Sign-in and sign-out publish to
// the user signal so subscribers such as the favorites store can react.
type Session struct {
	users  *signal.Value[domain.User]
	logger *zap.Logger
}

// SameUser compares users by id. Profile changes of the same user are not a
// user change.
func SameUser(a, b domain.User) bool {
	return a.ID == b.ID
}

// NewUserSignal returns an anonymous user signal keyed on user id.
func NewUserSignal() *signal.Value[domain.User] {
	return signal.New(domain.User{}, SameUser)
}

// NewSession constructs a Session publishing to users.
func NewSession(users *signal.Value[domain.User], logger *zap.Logger) *Session {
	if users == nil {
		users = NewUserSignal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{users: users, logger: logger}
}

// SignIn publishes the identity as the current user. Missing profile fields are
// filled from the Firebase user record when a loader is available.
func (s *Session) SignIn(ctx context.Context, identity *Identity) (domain.User, error) {
	if identity == nil || identity.UID == "" {
		return domain.User{}, ErrNoIdentity
	}

	user := identity.DomainUser()
	if user.DisplayName == "" || user.Email == "" {
		record, err := identity.Profile(ctx)
		switch {
		case err == nil && record != nil && record.UserInfo != nil:
			if user.DisplayName == "" {
				user.DisplayName = record.DisplayName
			}
			if user.Email == "" {
				user.Email = record.Email
			}
		case err != nil && !errors.Is(err, ErrNoProfileSource):
			s.logger.Warn("auth: load user profile failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	if s.users.Set(user) {
		s.logger.Info("auth: signed in", zap.String("user_id", user.ID))
	}
	return user, nil
}

// Authorize reports whether identity may act on the current user's state.
// Anonymous state is device-local and open to any caller of this process.
func Authorize(current domain.User, identity *Identity) error {
	if current.Anonymous() {
		return nil
	}
	if identity == nil || identity.UID == "" {
		return ErrNoIdentity
	}
	if identity.UID != current.ID {
		return ErrNotCurrentUser
	}
	return nil
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	previous := s.users.Get()
	if s.users.Set(domain.User{}) {
		s.logger.Info("auth: signed out", zap.String("user_id", previous.ID))
	}
}

// Current returns the signed-in user, or the zero user when anonymous.
func (s *Session) Current() domain.User {
	return s.users.Get()
}
