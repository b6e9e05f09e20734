package sealer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seal.key")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{7}, 32), 0o600))
	s, err := FromFile(path)
	require.NoError(t, err)
	require.True(t, s.Enabled())

	const key = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIG ops@host"
	sealed, err := s.Seal(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, Prefix))
	assert.NotContains(t, sealed, "AAAAC3")

	again, err := s.Seal(key)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ")

	got, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestDisabledPassesThrough(t *testing.T) {
	s, err := FromFile("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	v, err := s.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	enabled, err := FromKey(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	sealed, err := enabled.Seal("x")
	require.NoError(t, err)
	_, err = s.Open(sealed)
	assert.Error(t, err)
}

func TestOpenLegacyPlaintext(t *testing.T) {
	s, err := FromKey(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	v, err := s.Open("ssh-rsa AAAA")
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa AAAA", v)
}

func TestWrongKeyAndTamper(t *testing.T) {
	a, _ := FromKey(bytes.Repeat([]byte{1}, 32))
	b, _ := FromKey(bytes.Repeat([]byte{2}, 32))
	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)

	_, err = a.Open(Prefix + "AAAA")
	assert.Error(t, err)
}

func TestShortKey(t *testing.T) {
	_, err := FromKey([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
	_, err = FromFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
