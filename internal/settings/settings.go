// Package settings serves the operator-editable server settings.
package settings

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/sealer"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

// View is what clients may see. The SSH key itself is never returned, only
// the marker "stored".
type View struct {
	SSHKey         *string        `json:"sshKey"`
	BackendPort    *int           `json:"backendPort"`
	Fail2banConfig map[string]any `json:"fail2banConfig"`
}

const storedMarker = "stored"

type Service struct {
	store  *store.Store
	sealer *sealer.Sealer
	logger zerolog.Logger
}

func NewService(st *store.Store, s *sealer.Sealer, logger zerolog.Logger) *Service {
	if s == nil {
		s = sealer.Disabled()
	}
	return &Service{store: st, sealer: s, logger: logger.With().Str("component", "settings").Logger()}
}

func (s *Service) View(ctx context.Context) (View, error) {
	d, err := s.store.Load(ctx)
	if err != nil {
		return View{}, err
	}
	return viewOf(d.Settings), nil
}

func viewOf(st store.Settings) View {
	v := View{BackendPort: st.BackendPort, Fail2banConfig: st.Fail2banConfig}
	if st.SSHKey != nil && *st.SSHKey != "" {
		marker := storedMarker
		v.SSHKey = &marker
	}
	return v
}

// Update applies p and persists the document.
func (s *Service) Update(ctx context.Context, p Patch) error {
	p, err := p.Sealed(s.sealer)
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, func(d *store.AppData) error {
		p.Apply(&d.Settings)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().
		Bool("sshKey", p.SetSSHKey).
		Bool("backendPort", p.SetBackendPort).
		Bool("fail2banConfig", p.SetFail2ban).
		Msg("settings updated")
	return nil
}
