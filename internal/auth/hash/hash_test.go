package hash

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// cheap params keep the suite fast
var testParams = Params{Time: 1, Memory: 1024, Threads: 1}

func TestHashAndVerify(t *testing.T) {
	h := New(testParams)
	for _, pw := range []string{"secret", "s3cret!", "", "pässwörd", strings.Repeat("x", 200)} {
		digest, err := h.HashPassword(pw)
		require.NoError(t, err)
		assert.True(t, h.VerifyPassword(digest, pw), "round trip for %q", pw)
		assert.False(t, h.VerifyPassword(digest, pw+"x"), "different password for %q", pw)
	}
}

func TestDigestsAreSalted(t *testing.T) {
	h := New(testParams)
	a, err := h.HashPassword("same")
	require.NoError(t, err)
	b, err := h.HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "$argon2id$v=19$m=1024,t=1,p=1$"))
}

func TestVerifyUsesParamsFromDigest(t *testing.T) {
	digest, err := New(testParams).HashPassword("pw")
	require.NoError(t, err)
	// a hasher with different params still verifies older digests
	assert.True(t, New(Params{Time: 2, Memory: 2048, Threads: 1}).VerifyPassword(digest, "pw"))
}

func TestBcryptDigestsAccepted(t *testing.T) {
	b, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := New(testParams)
	assert.True(t, h.VerifyPassword(string(b), "secret"))
	assert.False(t, h.VerifyPassword(string(b), "Secret"))
	assert.True(t, h.NeedsRehash(string(b)))
}

func TestNeedsRehash(t *testing.T) {
	weak, err := New(testParams).HashPassword("pw")
	require.NoError(t, err)
	strong := New(Params{Time: 2, Memory: 2048, Threads: 1})
	assert.True(t, strong.NeedsRehash(weak))
	current, err := strong.HashPassword("pw")
	require.NoError(t, err)
	assert.False(t, strong.NeedsRehash(current))
	assert.False(t, strong.NeedsRehash("garbage"))
}

func TestInvalidParamsFallBack(t *testing.T) {
	assert.Equal(t, DefaultParams, New(Params{}).Params())
}

func TestMalformedDigestsNeverVerify(t *testing.T) {
	h := New(testParams)
	for _, d := range []string{"", "plain:secret", "$argon2i$v=19$m=1024,t=1,p=1$YQ$YQ", "$argon2id$v=18$m=1024,t=1,p=1$YQ$YQ", "$argon2id$v=19$m=1024$YQ$YQ"} {
		assert.False(t, h.VerifyPassword(d, "secret"), d)
	}
}

func TestPHCParsing(t *testing.T) {
	salt := make([]byte, saltLen)
	for i := range salt {
		salt[i] = byte(i)
	}
	sum := make([]byte, keyLen)
	for i := range sum {
		sum[i] = byte(i)
	}
	phc := strings.Join([]string{
		"",
		phcAlg,
		"v=19",
		"m=65536,t=3,p=1",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	}, "$")
	p, s, h, err := parsePHC(phc)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams, p)
	assert.Len(t, s, int(saltLen))
	assert.Len(t, h, int(keyLen))
}
