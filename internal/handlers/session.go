package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "finitefield.org/arcade/internal/domain"
	"finitefield.org/arcade/internal/platform/auth"
	"finitefield.org/arcade/internal/platform/httpx"
	"finitefield.org/arcade/internal/platform/requestctx"
)

// SessionHandlers signs the process user in and out.
type SessionHandlers struct {
	session *auth.Session
	// requireAuth guards sign-in; nil leaves the route open to whatever
	// middleware the router applies.
	requireAuth func(http.Handler) http.Handler
	identify    func(http.Handler) http.Handler
}

// NewSessionHandlers constructs session handlers. authn may be nil when the
// identity middleware is installed elsewhere.
func NewSessionHandlers(session *auth.Session, authn *auth.Authenticator) *SessionHandlers {
	h := &SessionHandlers{session: session}
	if authn != nil {
		h.requireAuth = authn.RequireFirebaseAuth()
		h.identify = authn.IdentifyFirebaseUser()
	}
	return h
}

// Routes registers session endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	if h.identify != nil {
		r.With(h.identify).Get("/", h.current)
		r.With(h.identify).Delete("/", h.signOut)
	} else {
		r.Get("/", h.current)
		r.Delete("/", h.signOut)
	}
	if h.requireAuth != nil {
		r.With(h.requireAuth).Post("/", h.signIn)
		return
	}
	r.Post("/", h.signIn)
}

type sessionPayload struct {
	SignedIn bool         `json:"signedIn"`
	User     *domain.User `json:"user,omitempty"`
}

func newSessionPayload(user domain.User) sessionPayload {
	if user.Anonymous() {
		return sessionPayload{}
	}
	return sessionPayload{SignedIn: true, User: &user}
}

func (h *SessionHandlers) current(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeSessionUnavailable(w, r)
		return
	}
	current := h.session.Current()
	identity, _ := auth.IdentityFromContext(r.Context())
	if auth.Authorize(current, identity) != nil {
		// Someone is signed in but the caller cannot prove it is them.
		writeJSONResponse(w, http.StatusOK, sessionPayload{SignedIn: true})
		return
	}
	writeJSONResponse(w, http.StatusOK, newSessionPayload(current))
}

func (h *SessionHandlers) signIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.session == nil {
		writeSessionUnavailable(w, r)
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	user, err := h.session.SignIn(ctx, identity)
	if err != nil {
		if errors.Is(err, auth.ErrNoIdentity) {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		requestctx.Logger(ctx).Error("sign in failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "sign in failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, newSessionPayload(user))
}

func (h *SessionHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeSessionUnavailable(w, r)
		return
	}
	if !authorizeOwner(w, r, h.session.Current()) {
		return
	}
	h.session.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("session_unavailable", "session is unavailable", http.StatusServiceUnavailable))
}
