package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MrVoidLink/loopa-servers-panel/internal/auth/hash"
	"github.com/MrVoidLink/loopa-servers-panel/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataFile = filepath.Join(t.TempDir(), "data", "app.json")
	cfg.JWTSecret = "router-test-secret-0123456789"
	cfg.Hash = hash.Params{Time: 1, Memory: 1024, Threads: 1}
	return cfg
}

func newTestApp(t *testing.T, mutate ...func(*config.Config)) *App {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}
	app, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	return app
}

type client struct {
	t     *testing.T
	h     http.Handler
	token string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(c.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res := httptest.NewRecorder()
	c.h.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

// setupAndLogin completes the wizard and returns an authenticated client.
func setupAndLogin(t *testing.T, app *App) *client {
	t.Helper()
	c := &client{t: t, h: app.Router()}
	res := c.do(http.MethodPost, "/api/setup", map[string]any{"adminUser": "admin", "adminPass": "s3cret"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	c.token = decodeBody(t, res)["token"].(string)
	return c
}

func httptestRecorder(app *App, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	app.Router().ServeHTTP(res, req)
	return res
}

func httptestRecorderFor(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}
