// Package envvars manages the key/value environment variables shown in the
// console. Keys are unique: writing an existing key updates it in place.
package envvars

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

type Service struct {
	store  *store.Store
	logger zerolog.Logger
	newID  func() string
}

func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "envvars").Logger(),
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *Service) List(ctx context.Context) ([]store.EnvVar, error) {
	d, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return d.Env, nil
}

// Upsert sets key to value. created is false when an existing entry was
// updated; that entry keeps its id.
func (s *Service) Upsert(ctx context.Context, key, value string) (store.EnvVar, bool, error) {
	if key == "" || value == "" {
		return store.EnvVar{}, false, apperr.Validation("key and value are required")
	}
	var (
		out     store.EnvVar
		created bool
	)
	_, err := s.store.Update(ctx, func(d *store.AppData) error {
		if i := d.FindEnvByKey(key); i >= 0 {
			d.Env[i].Value = value
			out = d.Env[i]
			return nil
		}
		out = store.EnvVar{ID: s.newID(), Key: key, Value: value}
		d.Env = append(d.Env, out)
		created = true
		return nil
	})
	if err != nil {
		return store.EnvVar{}, false, err
	}
	s.logger.Info().Str("key", key).Bool("created", created).Msg("env var saved")
	return out, created, nil
}

// Delete removes the entry with id and returns it.
func (s *Service) Delete(ctx context.Context, id string) (store.EnvVar, error) {
	var removed store.EnvVar
	_, err := s.store.Update(ctx, func(d *store.AppData) error {
		i := d.FindEnvByID(id)
		if i < 0 {
			return apperr.NotFound("not found")
		}
		removed = d.Env[i]
		d.Env = append(d.Env[:i], d.Env[i+1:]...)
		return nil
	})
	if err != nil {
		return store.EnvVar{}, err
	}
	s.logger.Info().Str("key", removed.Key).Msg("env var deleted")
	return removed, nil
}
