package metadata

import "encoding/json"

// MarshalJSON renders the FieldDef wire shape, expanding Constraints into options/validate.
func (f FieldDef) MarshalJSON() ([]byte, error) {
	type alias FieldDef
	options, validate, err := EncodeConstraints(f.Constraints)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Options  json.RawMessage `json:"options"`
		Validate json.RawMessage `json:"validate"`
	}{alias: alias(f), Options: options, Validate: validate})
}
