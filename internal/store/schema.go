package store

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is deliberately loose on unknown properties so a document
// written by a newer build still loads.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["setupDone"],
  "properties": {
    "setupDone": {"type": "boolean"},
    "users": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["username", "passwordHash"],
        "properties": {
          "username": {"type": "string", "minLength": 1},
          "passwordHash": {"type": "string", "minLength": 1}
        }
      }
    },
    "env": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["id", "key", "value"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "key": {"type": "string"},
          "value": {"type": "string"}
        }
      }
    },
    "settings": {
      "type": ["object", "null"],
      "properties": {
        "sshKey": {"type": ["string", "null"]},
        "backendPort": {"type": ["integer", "null"]},
        "fail2banConfig": {"type": ["object", "null"]}
      }
    }
  }
}`

var compiledSchema = mustCompile(documentSchema)

func mustCompile(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("store: bad document schema: %v", err))
	}
	return sc
}

// validateDocument checks raw JSON against the document schema.
func validateDocument(raw []byte) error {
	res, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("malformed document: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return fmt.Errorf("invalid document: %s", strings.Join(msgs, "; "))
	}
	return nil
}
