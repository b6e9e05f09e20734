package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/MrVoidLink/loopa-servers-panel/internal/apperr"
	"github.com/MrVoidLink/loopa-servers-panel/internal/sealer"
	"github.com/MrVoidLink/loopa-servers-panel/internal/store"
)

// Patch is a partial settings update. A Set* flag marks a field that was
// present in the request; a present field with a nil value clears it.
type Patch struct {
	SetSSHKey      bool
	SSHKey         *string
	SetBackendPort bool
	BackendPort    *int
	SetFail2ban    bool
	Fail2banConfig map[string]any
}

const patchSchema = `{
  "type": "object",
  "properties": {
    "sshKey": {"type": ["string", "null"]},
    "backendPort": {"type": ["integer", "string", "null"]},
    "fail2banConfig": {"type": ["object", "null"]}
  }
}`

var compiledPatchSchema = func() *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(patchSchema))
	if err != nil {
		panic(err)
	}
	return sc
}()

// DecodePatch parses a settings object. Unknown fields are ignored.
func DecodePatch(body []byte) (Patch, error) {
	var p Patch
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}
	res, err := compiledPatchSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return p, apperr.Validation("invalid JSON body")
	}
	if !res.Valid() {
		e := res.Errors()[0]
		return p, apperr.Validation(fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return p, apperr.Validation("invalid JSON body")
	}
	return FromRaw(raw)
}

// FromRaw builds a Patch from an already split JSON object.
func FromRaw(raw map[string]json.RawMessage) (Patch, error) {
	var p Patch
	if v, ok := raw["sshKey"]; ok {
		p.SetSSHKey = true
		if !isNull(v) {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return p, apperr.Validation("sshKey must be a string")
			}
			p.SSHKey = &s
		}
	}
	if v, ok := raw["backendPort"]; ok {
		p.SetBackendPort = true
		if !isNull(v) {
			port, err := ParsePort(v)
			if err != nil {
				return p, err
			}
			p.BackendPort = &port
		}
	}
	if v, ok := raw["fail2banConfig"]; ok {
		p.SetFail2ban = true
		if !isNull(v) {
			var m map[string]any
			if err := json.Unmarshal(v, &m); err != nil {
				return p, apperr.Validation("fail2banConfig must be an object")
			}
			p.Fail2banConfig = m
		}
	}
	return p, nil
}

func isNull(v json.RawMessage) bool { return bytes.Equal(bytes.TrimSpace(v), []byte("null")) }

// ParsePort accepts a JSON integer or a numeric string in 1..65535.
func ParsePort(v json.RawMessage) (int, error) {
	bad := apperr.Validation("backendPort must be an integer between 1 and 65535")
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, bad
		}
		n, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, bad
		}
	}
	if n != math.Trunc(n) || n < 1 || n > 65535 {
		return 0, bad
	}
	return int(n), nil
}

// Truthy drops fields that carry no value (empty key, nil port, empty
// config); the setup wizard only seeds settings that were actually filled.
func (p Patch) Truthy() Patch {
	if p.SSHKey == nil || *p.SSHKey == "" {
		p.SetSSHKey, p.SSHKey = false, nil
	}
	if p.BackendPort == nil {
		p.SetBackendPort = false
	}
	if len(p.Fail2banConfig) == 0 {
		p.SetFail2ban, p.Fail2banConfig = false, nil
	}
	return p
}

// Sealed returns p with the SSH key encrypted by s.
func (p Patch) Sealed(s *sealer.Sealer) (Patch, error) {
	if p.SSHKey == nil || *p.SSHKey == "" {
		return p, nil
	}
	v, err := s.Seal(*p.SSHKey)
	if err != nil {
		return p, fmt.Errorf("seal ssh key: %w", err)
	}
	p.SSHKey = &v
	return p, nil
}

// Apply writes the present fields of p into dst.
func (p Patch) Apply(dst *store.Settings) {
	if p.SetSSHKey {
		dst.SSHKey = p.SSHKey
	}
	if p.SetBackendPort {
		dst.BackendPort = p.BackendPort
	}
	if p.SetFail2ban {
		dst.Fail2banConfig = p.Fail2banConfig
	}
}
