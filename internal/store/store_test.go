package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/fsatomic"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data", "app.json"))
}

func TestLoadCreatesDefaultDocument(t *testing.T) {
	s := newStore(t)
	d, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, d.SetupDone)
	assert.Empty(t, d.Users)
	assert.NotNil(t, d.Users)
	assert.NotNil(t, d.Env)
	assert.Nil(t, d.Settings.SSHKey)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"setupDone":false,"users":[],"env":[],"settings":{}}`, string(raw))
}

func TestEnsureLeavesExistingDocument(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, AppData{SetupDone: true, Users: []User{{Username: "ops", PasswordHash: "x"}}}))
	require.NoError(t, s.Ensure(ctx))
	require.NoError(t, s.Ensure(ctx))

	d, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, d.SetupDone)
	require.Len(t, d.Users, 1)
}

func TestLoadMalformedIsStorageError(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"setupDone": tru`,
		"wrong type":      `{"setupDone": "yes", "users": [], "env": [], "settings": {}}`,
		"bad port":        `{"setupDone": false, "settings": {"backendPort": "22"}}`,
		"env missing id":  `{"setupDone": false, "env": [{"key": "A", "value": "1"}]}`,
		"missing setup":   `{"users": []}`,
		"top-level array": `[]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))
			_, err := s.Load(context.Background())
			require.Error(t, err)
			assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
		})
	}
}

func TestLoadAcceptsDocumentFromNodeBackend(t *testing.T) {
	s := newStore(t)
	doc := `{
  "setupDone": true,
  "users": [{"username": "ops", "passwordHash": "$2a$10$abcdefghijklmnopqrstuu5x0X1q1ZcC6l2mJb5o3W3aQ8b1Zl2a"}],
  "env": [{"id": "6b0c1f0e-3c1a-4f53-9b5e-8a3f3c7c9a10", "key": "A", "value": "1"}],
  "settings": {"sshKey": "ssh-ed25519 AAAA", "backendPort": 2222, "fail2banConfig": {"maxretry": 5}}
}`
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(doc), 0o600))

	d, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, d.SetupDone)
	require.NotNil(t, d.Settings.BackendPort)
	assert.Equal(t, 2222, *d.Settings.BackendPort)
	assert.EqualValues(t, 5, d.Settings.Fail2banConfig["maxretry"])
}

func TestSaveUnwritableIsStorageError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores permission bits")
	}
	dir := t.TempDir()
	blocker := filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	s := New(filepath.Join(blocker, "app.json"))

	err := s.Save(context.Background(), Default())
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	_, err = s.Load(context.Background())
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
}

func TestUpdateAbortsOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sentinel := apperr.Conflict("setup already completed")
	_, err := s.Update(ctx, func(d *AppData) error {
		d.SetupDone = true
		return sentinel
	})
	assert.Same(t, sentinel, err)

	d, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, d.SetupDone, "aborted update must not persist")
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, func(d *AppData) error {
				d.Env = append(d.Env, EnvVar{ID: fmt.Sprintf("id-%d", i), Key: fmt.Sprintf("K%d", i), Value: "v"})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	d, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Env, n, "no update may be lost")
}

func TestTwoStoresSameFileShareLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	a, b := New(path), New(path)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i, s := range []*Store{a, b, a, b, a, b} {
		wg.Add(1)
		go func(i int, s *Store) {
			defer wg.Done()
			_, err := s.Update(ctx, func(d *AppData) error {
				d.Users = append(d.Users, User{Username: fmt.Sprintf("u%d", i), PasswordHash: "h"})
				return nil
			})
			assert.NoError(t, err)
		}(i, s)
	}
	wg.Wait()
	d, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Users, 6)
}

func TestSweepRemovesStaleTemp(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ensure(ctx))
	tmp := fsatomic.TempPath(s.Path())
	require.NoError(t, os.WriteFile(tmp, []byte("{"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(tmp, old, old))

	removed, err := s.Sweep(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = s.Load(ctx)
	assert.NoError(t, err)
}

func TestFindHelpers(t *testing.T) {
	d := AppData{
		Users: []User{{Username: "ops"}},
		Env:   []EnvVar{{ID: "1", Key: "A"}, {ID: "2", Key: "B"}},
	}
	assert.Equal(t, 0, d.FindUser("ops"))
	assert.Equal(t, -1, d.FindUser("root"))
	assert.Equal(t, 1, d.FindEnvByKey("B"))
	assert.Equal(t, 0, d.FindEnvByID("1"))
	assert.Equal(t, -1, d.FindEnvByID("3"))
}
