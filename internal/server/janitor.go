package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

const staleTempAge = time.Hour

// Janitor runs the periodic housekeeping jobs: pruning expired login
// buckets (and flushing them when persisted) and removing a temp file left
// by an interrupted save.
type Janitor struct {
	app  *App
	cron *cron.Cron
}

func NewJanitor(a *App) (*Janitor, error) {
	j := &Janitor{app: a, cron: cron.New()}
	if _, err := j.cron.AddFunc("@every 1m", j.pruneLimiter); err != nil {
		return nil, err
	}
	if _, err := j.cron.AddFunc("@hourly", j.sweepTemp); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (j *Janitor) pruneLimiter() {
	l := j.app.Logger.With().Str("component", "janitor").Logger()
	if n := j.app.Limiter.Prune(j.app.Config.RateLoginWindow); n > 0 {
		l.Debug().Int("buckets", n).Msg("pruned rate limit buckets")
	}
	if j.app.Limiter.Persistent() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := j.app.Limiter.Flush(ctx); err != nil {
			l.Warn().Err(err).Msg("flush rate limit state")
		}
	}
}

func (j *Janitor) sweepTemp() {
	l := j.app.Logger.With().Str("component", "janitor").Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	removed, err := j.app.Store.Sweep(ctx, staleTempAge)
	if err != nil {
		l.Warn().Err(err).Msg("sweep stale temp file")
		return
	}
	if removed {
		l.Info().Msg("removed stale temp file")
	}
}
