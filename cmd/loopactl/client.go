package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIClient handles communication with the loopad API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError carries the message from an {"error": "..."} response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status: %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func newAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do performs a request and decodes a JSON response into out when non-nil.
func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type Health struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type EnvVar struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Settings struct {
	SSHKey         *string        `json:"sshKey"`
	BackendPort    *int           `json:"backendPort"`
	Fail2banConfig map[string]any `json:"fail2banConfig"`
}

func (c *APIClient) health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

func (c *APIClient) login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, &out)
	return out.Token, err
}

func (c *APIClient) me(ctx context.Context) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out.Username, err
}

func (c *APIClient) setupStatus(ctx context.Context) (bool, error) {
	var out struct {
		SetupDone bool `json:"setupDone"`
	}
	err := c.do(ctx, http.MethodGet, "/api/setup/status", nil, &out)
	return out.SetupDone, err
}

// runSetup submits the wizard. body holds adminUser, adminPass and any
// optional settings.
func (c *APIClient) runSetup(ctx context.Context, body map[string]any) error {
	return c.do(ctx, http.MethodPost, "/api/setup", body, nil)
}

func (c *APIClient) listEnv(ctx context.Context) ([]EnvVar, error) {
	var out struct {
		Items []EnvVar `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/env", nil, &out)
	return out.Items, err
}

func (c *APIClient) setEnv(ctx context.Context, key, value string) (EnvVar, error) {
	var ev EnvVar
	err := c.do(ctx, http.MethodPost, "/api/env", map[string]string{"key": key, "value": value}, &ev)
	return ev, err
}

func (c *APIClient) deleteEnv(ctx context.Context, id string) (EnvVar, error) {
	var ev EnvVar
	err := c.do(ctx, http.MethodDelete, "/api/env/"+url.PathEscape(id), nil, &ev)
	return ev, err
}

func (c *APIClient) getSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &s)
	return s, err
}

func (c *APIClient) putSettings(ctx context.Context, patch map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/settings", patch, nil)
}
