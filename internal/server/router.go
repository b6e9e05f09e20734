package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/MrVoidLink/loopa-servers-panel/pkg/httpx"
)

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(zerologMiddleware(a.Logger, a.Metrics))
	r.Use(securityHeaders(a.Config.TrustProxy))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{a.Config.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
	})
	r.Use(c.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339Nano)})
	})
	if a.Config.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.With(a.loginLimit).Post("/auth/login", a.handleLogin)
		r.Get("/setup/status", a.handleSetupStatus)
		r.Post("/setup", a.handleSetup)

		r.Group(func(r chi.Router) {
			r.Use(a.requireBearer)
			r.Get("/auth/me", a.handleMe)
			r.Get("/env", a.handleEnvList)
			r.Post("/env", a.handleEnvUpsert)
			r.Delete("/env/{id}", a.handleEnvDelete)
			r.Get("/settings", a.handleSettingsGet)
			r.Put("/settings", a.handleSettingsPut)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
