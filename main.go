package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/config"
	"github.com/MrVoidLink/loopa-servers-panel/internal/server"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger := server.Logger(config.Defaults())
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := server.Logger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	app, err := server.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	j, err := server.NewJanitor(app)
	if err != nil {
		return err
	}
	j.Start()

	srv := app.HTTPServer()
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("data", cfg.DataFile).Msgf("loopad listening on http://%s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(sctx)
	j.Stop(sctx)
	if app.Limiter.Persistent() {
		if ferr := app.Limiter.Flush(sctx); ferr != nil {
			logger.Warn().Err(ferr).Msg("flush rate limit state")
		}
	}
	return err
}
