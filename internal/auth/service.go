// Package auth is the credential service: it checks username/password pairs
// against the stored users and hands out bearer tokens.
package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/hash"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/token"
	"github.com/MrVoidLink/loopa-servers-panel/internal/metrics"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

type Service struct {
	store   *store.Store
	hasher  *hash.Hasher
	tokens  *token.Issuer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(st *store.Store, h *hash.Hasher, iss *token.Issuer, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   st,
		hasher:  h,
		tokens:  iss,
		logger:  logger.With().Str("component", "auth").Logger(),
		metrics: m,
	}
}

// HashPassword derives a digest with the configured work factor.
func (s *Service) HashPassword(plain string) (string, error) {
	return s.hasher.HashPassword(plain)
}

// AddUser appends username to d unless it already exists. Existing users
// are never overwritten. It reports whether a user was added.
func AddUser(d *store.AppData, username, digest string) bool {
	if d.FindUser(username) >= 0 {
		return false
	}
	d.Users = append(d.Users, store.User{Username: username, PasswordHash: digest})
	return true
}

// VerifyCredentials reports whether password matches the stored digest of
// username. Outdated digests are upgraded after a successful match.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	d, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}
	i := d.FindUser(username)
	if i < 0 {
		// burn comparable time so unknown users are not distinguishable
		s.hasher.VerifyPassword(s.dummy(), password)
		return false, nil
	}
	digest := d.Users[i].PasswordHash
	if !s.hasher.VerifyPassword(digest, password) {
		return false, nil
	}
	if s.hasher.NeedsRehash(digest) {
		s.rehash(ctx, username, digest, password)
	}
	return true, nil
}

func (s *Service) rehash(ctx context.Context, username, old, password string) {
	fresh, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Warn().Err(err).Str("user", username).Msg("rehash failed")
		return
	}
	_, err = s.store.Update(ctx, func(d *store.AppData) error {
		if i := d.FindUser(username); i >= 0 && d.Users[i].PasswordHash == old {
			d.Users[i].PasswordHash = fresh
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user", username).Msg("persist upgraded digest")
		return
	}
	s.logger.Info().Str("user", username).Msg("password digest upgraded")
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.HashPassword("loopa-dummy-password")
	})
	return s.dummyDigest
}

// Login checks the credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		s.metrics.Login("missing_credentials")
		return "", apperr.Validation("missing credentials")
	}
	ok, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		s.metrics.Login("error")
		return "", err
	}
	if !ok {
		s.metrics.Login("invalid_credentials")
		s.logger.Info().Str("user", username).Msg("login rejected")
		return "", apperr.Unauthorized("invalid credentials")
	}
	tok, err := s.tokens.Issue(username)
	if err != nil {
		s.metrics.Login("error")
		return "", err
	}
	s.metrics.Login("ok")
	s.logger.Info().Str("user", username).Msg("login")
	return tok, nil
}

// Authenticate verifies a bearer token. Every failure maps to the same
// client-facing error; the cause is only logged.
func (s *Service) Authenticate(tok string) (token.Claims, error) {
	c, err := s.tokens.Verify(tok)
	if err != nil {
		reason := token.Reason(err)
		s.metrics.TokenFailure(reason)
		s.logger.Debug().Str("reason", reason).Msg("token rejected")
		return token.Claims{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "invalid token", Err: err}
	}
	return c, nil
}

// Me returns the stored user for username.
func (s *Service) Me(ctx context.Context, username string) (store.User, error) {
	d, err := s.store.Load(ctx)
	if err != nil {
		return store.User{}, err
	}
	i := d.FindUser(username)
	if i < 0 {
		return store.User{}, apperr.NotFound("user not found")
	}
	return d.Users[i], nil
}
