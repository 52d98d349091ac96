// Package validation compiles field definitions into runtime record validators.
//
// Each active field becomes one property of a JSON Schema (draft 2020-12) document that is
// compiled with santhosh-tekuri/jsonschema. Presence rules (required, empty-as-absent) and
// date bounds are evaluated in Go around the compiled schema, since JSON Schema can express
// neither "empty counts as missing" nor instant comparison.
package validation

import (
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

// Mode selects between whole-record and patch validation.
type Mode int

const (
	// ModeFull validates a complete record: required fields must be present.
	ModeFull Mode = iota
	// ModePartial validates a patch: required fields may be omitted, but keys that are
	// present must satisfy the same per-field rules.
	ModePartial
)

func (m Mode) String() string {
	if m == ModePartial {
		return "partial"
	}
	return "full"
}

// BuildSchema renders the JSON Schema document for the given fields. The document only
// depends on field content, so its canonical JSON encoding doubles as the cache fingerprint.
func BuildSchema(fields metadata.FieldSet) map[string]any {
	properties := make(map[string]any, fields.Len())
	for _, f := range fields.Fields() {
		properties[f.Key] = fieldSchema(f)
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
}

func fieldSchema(f metadata.FieldDef) map[string]any {
	nullable := !f.Required

	switch c := f.Constraints.(type) {
	case metadata.TextConstraints:
		s := map[string]any{"type": typeList("string", nullable)}
		if c.MinLen != nil {
			s["minLength"] = *c.MinLen
		}
		if c.MaxLen != nil {
			s["maxLength"] = *c.MaxLen
		}
		if c.Regex != "" {
			s["pattern"] = c.Regex
		}
		return s

	case metadata.NumberConstraints:
		base := "number"
		if c.Integer {
			base = "integer"
		}
		s := map[string]any{"type": typeList(base, nullable)}
		if c.Min != nil {
			s["minimum"] = *c.Min
		}
		if c.Max != nil {
			s["maximum"] = *c.Max
		}
		return s

	case metadata.DateConstraints:
		return map[string]any{"type": typeList("string", nullable), "format": "date-time"}

	case metadata.BooleanConstraints:
		return map[string]any{"type": typeList("boolean", nullable)}

	case metadata.SelectConstraints:
		enum := make([]any, 0, len(c.Options)+1)
		for _, o := range c.Options {
			enum = append(enum, o)
		}
		if c.Multiselect {
			return map[string]any{
				"type":  typeList("array", nullable),
				"items": map[string]any{"type": "string", "enum": enum},
			}
		}
		if nullable {
			enum = append(enum, nil)
		}
		return map[string]any{"type": typeList("string", nullable), "enum": enum}

	case metadata.RelationConstraints:
		id := map[string]any{"type": "string", "format": "uuid"}
		if c.Cardinality == metadata.CardinalityMany {
			return map[string]any{"type": typeList("array", nullable), "items": id}
		}
		return map[string]any{"type": typeList("string", nullable), "format": "uuid"}

	default:
		// A field without a decoded variant accepts nothing but null.
		return map[string]any{"type": "null"}
	}
}

func typeList(base string, nullable bool) any {
	if nullable {
		return []any{base, "null"}
	}
	return base
}
