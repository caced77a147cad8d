package handlers

import (
	"net/http"
	"strings"

	"github.com/trektide/apiserver/internal/auth"
	"github.com/trektide/apiserver/internal/services"
	"github.com/trektide/apiserver/types"
)

// SessionMiddleware resolves JWT sessions into accounts on each request.
type SessionMiddleware struct {
	codec      *auth.Codec
	accounts   *services.AccountService
	cookieName string
}

// NewSessionMiddleware constructs the middleware set shared by API and
// view routers.
func NewSessionMiddleware(codec *auth.Codec, accounts *services.AccountService, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{
		codec:      codec,
		accounts:   accounts,
		cookieName: cookieName,
	}
}

// extractToken returns the raw token string from the request. A bearer
// Authorization header wins over the session cookie.
func (m *SessionMiddleware) extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, nil
		}
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", auth.ErrNoCredential
}

func (m *SessionMiddleware) resolve(r *http.Request) (types.Account, error) {
	token, err := m.extractToken(r)
	if err != nil {
		return types.Account{}, err
	}
	sess, err := m.codec.Verify(token)
	if err != nil {
		return types.Account{}, err
	}
	return m.accounts.ResolveSession(r.Context(), sess)
}

// RequireAuth rejects requests without a valid session and injects the
// resolved account into the request context.
func (m *SessionMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := m.resolve(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithAccount(r.Context(), account)))
	})
}

// OptionalAuth injects the account when a valid session is present and
// otherwise lets the request through anonymously. Used by the rendered
// pages for personalization.
func (m *SessionMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if account, err := m.resolve(r); err == nil {
			r = r.WithContext(auth.ContextWithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only accounts whose role is in the given set. It
// must run after RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := accountFromRequest(w, r)
			if !ok {
				return
			}
			if _, ok := allowed[account.Role]; !ok {
				writeServiceError(w, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
