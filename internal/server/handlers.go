package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/MrVoidLink/loopa-servers-panel/internal/settings"
	"github.com/MrVoidLink/loopa-servers-panel/internal/setup"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
	"github.com/MrVoidLink/loopa-servers-panel/pkg/httpx"
)

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteAppError(w, *zerolog.Ctx(r.Context()), err)
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	tok, err := a.Auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	username, _ := UsernameFrom(r.Context())
	u, err := a.Auth.Me(r.Context(), username)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"username": u.Username})
}

func (a *App) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Setup.Status(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (a *App) handleSetup(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req, err := setup.DecodeRequest(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Setup.Submit(r.Context(), req); err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (a *App) handleEnvList(w http.ResponseWriter, r *http.Request) {
	items, err := a.Env.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]store.EnvVar{"items": items})
}

func (a *App) handleEnvUpsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	ev, created, err := a.Env.Upsert(r.Context(), body.Key, body.Value)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, ev)
}

func (a *App) handleEnvDelete(w http.ResponseWriter, r *http.Request) {
	ev, err := a.Env.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ev)
}

func (a *App) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	v, err := a.Settings.View(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (a *App) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := settings.DecodePatch(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Settings.Update(r.Context(), p); err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
