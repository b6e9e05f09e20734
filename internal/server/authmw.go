package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/pkg/httpx"
)

type ctxKey string

const ctxUsername ctxKey = "username"

// UsernameFrom returns the authenticated subject stored by requireBearer.
func UsernameFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxUsername).(string)
	return u, ok && u != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func (a *App) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := a.Auth.Authenticate(tok)
		if err != nil {
			httpx.WriteAppError(w, *zerolog.Ctx(r.Context()), err)
			return
		}
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user", claims.Username)
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUsername, claims.Username)))
	})
}
