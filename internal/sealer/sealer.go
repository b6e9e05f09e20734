// Package sealer encrypts small secrets (the stored SSH key) before they are
// written to the data file.
package sealer

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Prefix marks a sealed value inside the document.
const Prefix = "sealed:v1:"

var ErrKeyTooShort = errors.New("seal key too short")

// Sealer is a no-op when created without a key.
type Sealer struct {
	key []byte
}

// Disabled returns a Sealer that stores values verbatim.
func Disabled() *Sealer { return &Sealer{} }

// FromFile reads a key file of at least 32 bytes. An empty path yields a
// disabled Sealer.
func FromFile(path string) (*Sealer, error) {
	if strings.TrimSpace(path) == "" {
		return Disabled(), nil
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seal key: %w", err)
	}
	return FromKey(key)
}

func FromKey(key []byte) (*Sealer, error) {
	if len(key) < chacha20poly1305.KeySize {
		return nil, ErrKeyTooShort
	}
	k := make([]byte, chacha20poly1305.KeySize)
	copy(k, key)
	return &Sealer{key: k}, nil
}

func (s *Sealer) Enabled() bool { return s != nil && len(s.key) > 0 }

// Seal encrypts plaintext with XChaCha20-Poly1305 and returns
// Prefix+base64(nonce||ciphertext). Disabled sealers return plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.Enabled() {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	blob := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.RawStdEncoding.EncodeToString(blob), nil
}

// Open reverses Seal. Values without Prefix are returned as-is so documents
// written before sealing was enabled stay readable.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	if !s.Enabled() {
		return "", errors.New("value is sealed but no seal key is configured")
	}
	blob, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", errors.New("ciphertext too short")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(pt), nil
}
