// Package server wires the HTTP API: routing, middleware and the handlers
// that translate requests into calls on the domain services.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MrVoidLink/loopa-servers-panel/internal/auth"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/hash"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/token"
	"github.com/MrVoidLink/loopa-servers-panel/internal/config"
	"github.com/MrVoidLink/loopa-servers-panel/internal/envvars"
	"github.com/MrVoidLink/loopa-servers-panel/internal/metrics"
	"github.com/MrVoidLink/loopa-servers-panel/internal/ratelimit"
	"github.com/MrVoidLink/loopa-servers-panel/internal/sealer"
	"github.com/MrVoidLink/loopa-servers-panel/internal/settings"
	"github.com/MrVoidLink/loopa-servers-panel/internal/setup"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

func Logger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return log.Logger.Level(cfg.LogLevel).With().Timestamp().Logger()
}

// App holds the services behind one running API.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    *store.Store
	Auth     *auth.Service
	Setup    *setup.Gate
	Env      *envvars.Service
	Settings *settings.Service
	Limiter  *ratelimit.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// New builds every service from cfg and makes sure the data file exists.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	seal, err := sealer.FromFile(cfg.SealKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load seal key: %w", err)
	}
	if !seal.Enabled() {
		logger.Warn().Msg("no seal key configured, ssh keys are stored in plain text")
	}
	if cfg.WeakSecret() {
		logger.Warn().Msg("JWT_SECRET is unset or weak, set a long random value in production")
	}

	st := store.New(cfg.DataFile, store.WithLogger(logger), store.WithMetrics(m))
	if err := st.Ensure(ctx); err != nil {
		return nil, err
	}
	a := auth.NewService(st, hash.New(cfg.Hash), token.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), logger, m)
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Auth:     a,
		Setup:    setup.NewGate(st, a, seal, logger, m),
		Env:      envvars.NewService(st, logger),
		Settings: settings.NewService(st, seal, logger),
		Limiter:  ratelimit.New(cfg.RatePath),
		Metrics:  m,
		Registry: reg,
	}
	if _, err := app.Setup.Status(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// HTTPServer returns a server for the app's router with conservative timeouts.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
