// Package setup implements the one-time setup wizard: it creates the first
// administrator, seeds the initial settings and then locks itself.
//
// The gate has two states, not set up and done. The only transition is a
// successful Submit; nothing moves it back.
package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/auth"
	"github.com/MrVoidLink/loopa-servers-panel/internal/metrics"
	"github.com/MrVoidLink/loopa-servers-panel/internal/sealer"
	"github.com/MrVoidLink/loopa-servers-panel/internal/settings"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

type Status struct {
	SetupDone bool `json:"setupDone"`
}

// Request is a setup submission. Settings only carries the fields that
// were filled in.
type Request struct {
	AdminUser string
	AdminPass string
	Settings  settings.Patch
}

type Gate struct {
	store   *store.Store
	auth    *auth.Service
	sealer  *sealer.Sealer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewGate(st *store.Store, a *auth.Service, s *sealer.Sealer, logger zerolog.Logger, m *metrics.Metrics) *Gate {
	if s == nil {
		s = sealer.Disabled()
	}
	return &Gate{store: st, auth: a, sealer: s, logger: logger.With().Str("component", "setup").Logger(), metrics: m}
}

func (g *Gate) Status(ctx context.Context) (Status, error) {
	d, err := g.store.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	g.metrics.SetupDone(d.SetupDone)
	return Status{SetupDone: d.SetupDone}, nil
}

var errAlreadyDone = apperr.Conflict("setup already completed")

// Submit runs the wizard. The admin user, the settings and the done flag
// are written in a single save; any failure before that leaves the
// document unchanged.
func (g *Gate) Submit(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.AdminUser) == "" || req.AdminPass == "" {
		return apperr.Validation("adminUser and adminPass are required")
	}
	// cheap early exit before paying for the hash
	st, err := g.Status(ctx)
	if err != nil {
		return err
	}
	if st.SetupDone {
		return errAlreadyDone
	}
	digest, err := g.auth.HashPassword(req.AdminPass)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	patch, err := req.Settings.Truthy().Sealed(g.sealer)
	if err != nil {
		return err
	}
	var created bool
	_, err = g.store.Update(ctx, func(d *store.AppData) error {
		if d.SetupDone {
			return errAlreadyDone
		}
		created = auth.AddUser(d, req.AdminUser, digest)
		patch.Apply(&d.Settings)
		d.SetupDone = true
		return nil
	})
	if err != nil {
		return err
	}
	g.metrics.SetupDone(true)
	g.logger.Info().Str("admin", req.AdminUser).Bool("userCreated", created).Msg("setup completed")
	return nil
}

// DecodeRequest parses a setup body. Optional settings that are empty,
// zero or null are treated as absent, as the wizard sends blank fields.
func DecodeRequest(body []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return Request{}, apperr.Validation("invalid JSON body")
		}
	}
	var req Request
	var err error
	if req.AdminUser, err = optString(raw, "adminUser"); err != nil {
		return Request{}, err
	}
	if req.AdminPass, err = optString(raw, "adminPass"); err != nil {
		return Request{}, err
	}
	opt := map[string]json.RawMessage{}
	for _, k := range []string{"sshKey", "backendPort", "fail2banConfig"} {
		if v, ok := raw[k]; ok && !blank(v) {
			opt[k] = v
		}
	}
	if req.Settings, err = settings.FromRaw(opt); err != nil {
		return Request{}, err
	}
	return req, nil
}

func optString(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || blank(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", apperr.Validation(key + " must be a string")
	}
	return s, nil
}

func blank(v json.RawMessage) bool {
	switch string(bytes.TrimSpace(v)) {
	case "null", `""`, "0", "false":
		return true
	}
	return false
}
