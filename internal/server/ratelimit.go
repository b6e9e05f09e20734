package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/config"
	"github.com/MrVoidLink/loopa-servers-panel/pkg/httpx"
)

// clientIP returns the caller's address. X-Forwarded-For is only read when
// the daemon sits behind a trusted proxy, in which case the last entry
// (the one the proxy appended) wins.
func clientIP(r *http.Request, cfg config.Config) string {
	if cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if p := strings.TrimSpace(parts[i]); p != "" {
					return p
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loginLimit admits RateLoginMax attempts per client per RateLoginWindow.
func (a *App) loginLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, a.Config)
		ok, _, reset := a.Limiter.Allow("login:"+ip, a.Config.RateLoginMax, a.Config.RateLoginWindow)
		if !ok {
			zerolog.Ctx(r.Context()).Warn().Str("ip", ip).Msg("login rate limit hit")
			httpx.WriteRetryAfter(w, time.Until(reset), "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
