// Package hash produces and checks password digests.
//
// New digests are Argon2id in PHC form:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<saltB64>$<hashB64>
//
// bcrypt digests ($2a$/$2b$/$2y$) written by earlier deployments are still
// accepted by VerifyPassword and reported by NeedsRehash.
package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	saltLen    uint32 = 16
	keyLen     uint32 = 32
	phcAlg            = "argon2id"
	phcVersion        = argon2.Version
)

// Params is the Argon2id work factor.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams: 3 passes over 64 MiB, single lane.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1}

func (p Params) valid() bool { return p.Time > 0 && p.Memory >= 8*uint32(p.Threads) && p.Threads > 0 }

// weaker reports whether p costs less than q on any axis.
func (p Params) weaker(q Params) bool {
	return p.Time < q.Time || p.Memory < q.Memory || p.Threads < q.Threads
}

type Hasher struct {
	params Params
}

// New returns a Hasher for p, falling back to DefaultParams when p is unusable.
func New(p Params) *Hasher {
	if !p.valid() {
		p = DefaultParams
	}
	return &Hasher{params: p}
}

func (h *Hasher) Params() Params { return h.params }

// HashPassword derives a fresh salted digest of plain.
func (h *Hasher) HashPassword(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p := h.params
	sum := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, keyLen)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlg, phcVersion, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyPassword reports whether plain matches digest. Malformed digests
// never match.
func (h *Hasher) VerifyPassword(digest, plain string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
	}
	params, salt, sum, err := parsePHC(digest)
	if err != nil {
		return false
	}
	calc := argon2.IDKey([]byte(plain), salt, params.Time, params.Memory, params.Threads, uint32(len(sum)))
	return subtle.ConstantTimeCompare(calc, sum) == 1
}

// NeedsRehash is true for bcrypt digests and Argon2id digests cheaper than
// the hasher's current params.
func (h *Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	p, _, _, err := parsePHC(digest)
	if err != nil {
		return false
	}
	return p.weaker(h.params)
}

// HashPassword hashes with DefaultParams.
func HashPassword(plain string) (string, error) { return New(DefaultParams).HashPassword(plain) }

// VerifyPassword checks plain against digest.
func VerifyPassword(digest, plain string) bool { return New(DefaultParams).VerifyPassword(digest, plain) }

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func parsePHC(phc string) (Params, []byte, []byte, error) {
	// "", alg, v=19, params, salt, hash
	if !strings.HasPrefix(phc, "$") {
		return Params{}, nil, nil, errors.New("invalid phc: missing prefix")
	}
	parts := strings.Split(phc, "$")
	if len(parts) != 6 {
		return Params{}, nil, nil, errors.New("invalid phc: parts")
	}
	if parts[1] != phcAlg {
		return Params{}, nil, nil, fmt.Errorf("unsupported alg: %s", parts[1])
	}
	v, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || err != nil || v != phcVersion {
		return Params{}, nil, nil, fmt.Errorf("unsupported version: %s", parts[2])
	}
	var pp Params
	for _, kv := range strings.Split(parts[3], ",") {
		k, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "m":
			if n, err := strconv.ParseUint(val, 10, 32); err == nil {
				pp.Memory = uint32(n)
			}
		case "t":
			if n, err := strconv.ParseUint(val, 10, 32); err == nil {
				pp.Time = uint32(n)
			}
		case "p":
			if n, err := strconv.ParseUint(val, 10, 8); err == nil {
				pp.Threads = uint8(n)
			}
		}
	}
	if pp.Memory == 0 || pp.Time == 0 || pp.Threads == 0 {
		return Params{}, nil, nil, errors.New("invalid phc: params")
	}
	// refuse absurd costs read from disk
	if pp.Memory > 4*1024*1024 || pp.Time > 64 {
		return Params{}, nil, nil, errors.New("invalid phc: cost out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errors.New("invalid phc: salt")
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(sum) == 0 {
		return Params{}, nil, nil, errors.New("invalid phc: hash")
	}
	return pp, salt, sum, nil
}
