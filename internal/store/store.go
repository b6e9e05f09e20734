// Package store owns the single JSON document holding all console state.
//
// Every read returns a freshly decoded copy and every write replaces the
// whole file. Mutations go through Update, which serializes the
// read-modify-write cycle with a process mutex and an advisory file lock,
// so concurrent requests no longer overwrite each other's changes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/fsatomic"
	"github.com/MrVoidLink/loopa-servers-panel/internal/metrics"
)

type Store struct {
	path    string
	logger  zerolog.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

func New(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With().Str("component", "store").Str("path", path).Logger()
	return s
}

func (s *Store) Path() string { return s.path }

// Ensure writes the default document if the file does not exist yet. An
// existing file is left untouched, whatever its content.
func (s *Store) Ensure(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return apperr.Storage("stat", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fsatomic.WithLock(ctx, s.path, func() error { return s.ensureLocked(ctx) })
	if err != nil && !apperr.Is(err, apperr.KindStorage) {
		err = apperr.Storage("init", err)
	}
	return err
}

func (s *Store) ensureLocked(ctx context.Context) error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return apperr.Storage("stat", err)
	}
	if err := fsatomic.SaveJSON(ctx, s.path, Default(), 0o600); err != nil {
		return apperr.Storage("init", err)
	}
	s.logger.Info().Msg("created default document")
	return nil
}

// Load returns the current document.
func (s *Store) Load(ctx context.Context) (AppData, error) {
	if err := s.Ensure(ctx); err != nil {
		s.metrics.StoreOp("load", err)
		return AppData{}, err
	}
	d, err := s.read()
	s.metrics.StoreOp("load", err)
	return d, err
}

func (s *Store) read() (AppData, error) {
	raw, ok, err := fsatomic.ReadFile(s.path)
	if err != nil {
		return AppData{}, apperr.Storage("read", err)
	}
	if !ok {
		return AppData{}, apperr.Storage("read", os.ErrNotExist)
	}
	if err := validateDocument(raw); err != nil {
		s.logger.Error().Err(err).Msg("document rejected")
		return AppData{}, apperr.Storage("decode", err)
	}
	var d AppData
	if err := json.Unmarshal(raw, &d); err != nil {
		return AppData{}, apperr.Storage("decode", err)
	}
	d.normalize()
	return d, nil
}

// Save replaces the document with data.
func (s *Store) Save(ctx context.Context, data AppData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fsatomic.WithLock(ctx, s.path, func() error { return s.write(ctx, data) })
	if err != nil && !apperr.Is(err, apperr.KindStorage) {
		err = apperr.Storage("lock", err)
	}
	s.metrics.StoreOp("save", err)
	return err
}

func (s *Store) write(ctx context.Context, data AppData) error {
	data.normalize()
	if err := fsatomic.SaveJSON(ctx, s.path, data, 0o600); err != nil {
		return apperr.Storage("write", err)
	}
	return nil
}

// Update loads the document, applies fn and saves the result as one step.
// If fn returns an error nothing is written and that error is returned
// unchanged.
func (s *Store) Update(ctx context.Context, fn func(*AppData) error) (AppData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		out   AppData
		fnErr error
	)
	err := fsatomic.WithLock(ctx, s.path, func() error {
		if err := s.ensureLocked(ctx); err != nil {
			return err
		}
		d, err := s.read()
		if err != nil {
			return err
		}
		if fnErr = fn(&d); fnErr != nil {
			return fnErr
		}
		if err := s.write(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil && fnErr == nil && !apperr.Is(err, apperr.KindStorage) {
		err = apperr.Storage("lock", err)
	}
	s.metrics.StoreOp("update", err)
	return out, err
}

// Sweep removes a staging file abandoned by an interrupted save.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed bool
	err := fsatomic.WithLock(ctx, s.path, func() error {
		var err error
		removed, err = fsatomic.RemoveStaleTemp(s.path, maxAge)
		return err
	})
	if removed {
		s.logger.Warn().Msg("removed stale staging file")
	}
	return removed, err
}
