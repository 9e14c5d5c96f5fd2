package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Field declares a single configuration option.
type Field struct {
	Type Type
	// Default is used when the option is not supplied. Nil means no default.
	Default any
	// Required fields without a default must be supplied.
	Required bool
}

// Required declares a field that must be supplied.
func Required(t Type) Field {
	return Field{Type: t, Required: true}
}

// Optional declares a field that falls back to def when absent.
// A nil def leaves the field out of the resolved bag.
func Optional(t Type, def any) Field {
	return Field{Type: t, Default: def}
}

// Schema is a map of field names to their declarations.
// Example: {"api_key": Required(String()), "region": Optional(String(), "eu")}
type Schema map[string]Field

// Keys returns the declared field names in a deterministic order.
func (s Schema) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Extend returns a new schema with the fields of other layered over s.
func (s Schema) Extend(other Schema) Schema {
	out := make(Schema, len(s)+len(other))
	maps.Copy(out, s)
	maps.Copy(out, other)
	return out
}

type fieldJSON struct {
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`
}

// MarshalJSON describes the schema as a map of field names to type, requiredness and default.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	raw := make(map[string]fieldJSON, len(s))
	for key, f := range s {
		if f.Type == nil {
			return nil, fmt.Errorf("field %s: type is nil", key)
		}
		raw[key] = fieldJSON{Type: f.Type.Name(), Required: f.Required, Default: f.Default}
	}

	return json.Marshal(raw)
}
