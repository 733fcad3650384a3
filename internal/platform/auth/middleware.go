package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"finitefield.org/arcade/internal/platform/httpx"
)

// verifyTimeout bounds token verification and the lazy profile lookup.
const verifyTimeout = 5 * time.Second

var (
	// ErrTokenMissing signals that the request carried no bearer token.
	ErrTokenMissing = errors.New("auth: bearer token missing")
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
	// ErrVerifierUnavailable signals that no verifier was configured.
	ErrVerifierUnavailable = errors.New("auth: token verifier unavailable")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter retrieves Firebase user information.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// Authenticator turns bearer tokens into request identities.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithUserGetter lets identities load the player's Firebase profile on demand.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// NewAuthenticator constructs an Authenticator around verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token and stores
// the verified identity in the request context.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return a.middleware(true)
}

// IdentifyFirebaseUser attaches an identity when the request carries a bearer
// token. Requests without an Authorization header pass through anonymous; a
// token that fails verification is still rejected.
func (a *Authenticator) IdentifyFirebaseUser() func(http.Handler) http.Handler {
	return a.middleware(false)
}

func (a *Authenticator) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !required && strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := a.identify(r.Context(), header)
			if err != nil {
				httpx.WriteError(r.Context(), w, authError(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) identify(ctx context.Context, header string) (*Identity, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return nil, ErrTokenMissing
	}
	if a == nil || a.verifier == nil {
		return nil, ErrVerifierUnavailable
	}

	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}

	identity := &Identity{
		UID:         uid,
		Email:       stringClaim(token.Claims, "email"),
		DisplayName: stringClaim(token.Claims, "name"),
	}
	if users := a.users; users != nil {
		identity.profile = func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
			ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
			defer cancel()
			return users.GetUser(ctx, uid)
		}
	}
	return identity, nil
}

func authError(err error) httpx.Error {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized)
	case errors.Is(err, ErrVerifierUnavailable):
		return httpx.NewError("unauthenticated", "sign-in is not configured", http.StatusUnauthorized)
	case errors.Is(err, ErrTokenExpired):
		return httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized)
	default:
		return httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized)
	}
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
