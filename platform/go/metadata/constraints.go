package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Cardinality of a relation field.
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// Constraints is the kind-specific payload of a field definition. Exactly one variant
// exists per Kind; DecodeConstraints is the only way raw options/validate JSON becomes one.
type Constraints interface {
	Kind() Kind
	check() error
}

// TextConstraints bound a text field.
type TextConstraints struct {
	MinLen *int   `json:"minLen,omitempty"`
	MaxLen *int   `json:"maxLen,omitempty"`
	Regex  string `json:"regex,omitempty"`
}

// NumberConstraints bound a number field.
type NumberConstraints struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Integer bool     `json:"integer,omitempty"`
}

// DateConstraints bound a date-time field; bounds are compared as instants.
type DateConstraints struct {
	Min *time.Time `json:"min,omitempty"`
	Max *time.Time `json:"max,omitempty"`
}

// BooleanConstraints carries no options.
type BooleanConstraints struct{}

// SelectConstraints declare the enum of a select field.
type SelectConstraints struct {
	Options     []string `json:"options"`
	Multiselect bool     `json:"multiselect,omitempty"`
}

// RelationConstraints declare the target of a relation field.
type RelationConstraints struct {
	TargetEntityTypeID uuid.UUID   `json:"targetEntityTypeId"`
	Cardinality        Cardinality `json:"cardinality"`
}

func (TextConstraints) Kind() Kind     { return KindText }
func (NumberConstraints) Kind() Kind   { return KindNumber }
func (DateConstraints) Kind() Kind     { return KindDate }
func (BooleanConstraints) Kind() Kind  { return KindBoolean }
func (SelectConstraints) Kind() Kind   { return KindSelect }
func (RelationConstraints) Kind() Kind { return KindRelation }

func (c TextConstraints) check() error {
	if c.MinLen != nil && *c.MinLen < 0 {
		return errors.New("minLen must be >= 0")
	}
	if c.MaxLen != nil && *c.MaxLen < 0 {
		return errors.New("maxLen must be >= 0")
	}
	if c.MinLen != nil && c.MaxLen != nil && *c.MinLen > *c.MaxLen {
		return errors.New("minLen must be <= maxLen")
	}
	if c.Regex != "" {
		if _, err := regexp.Compile(c.Regex); err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
	}
	return nil
}

func (c NumberConstraints) check() error {
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return errors.New("min must be <= max")
	}
	return nil
}

func (c DateConstraints) check() error {
	if c.Min != nil && c.Max != nil && c.Min.After(*c.Max) {
		return errors.New("min must not be after max")
	}
	return nil
}

func (BooleanConstraints) check() error { return nil }

func (c SelectConstraints) check() error {
	if len(c.Options) == 0 {
		return errors.New("select fields require at least one option")
	}
	seen := make(map[string]struct{}, len(c.Options))
	for _, o := range c.Options {
		if o == "" {
			return errors.New("select options must not be empty")
		}
		if _, dup := seen[o]; dup {
			return fmt.Errorf("duplicate select option %q", o)
		}
		seen[o] = struct{}{}
	}
	return nil
}

func (c RelationConstraints) check() error {
	if c.TargetEntityTypeID == uuid.Nil {
		return errors.New("relation fields require targetEntityTypeId")
	}
	switch c.Cardinality {
	case CardinalityOne, CardinalityMany:
		return nil
	default:
		return fmt.Errorf("unsupported cardinality %q", c.Cardinality)
	}
}

// Wire payload shapes. Select and relation settings travel in options; bounds travel in validate.
type selectOptions struct {
	Values      []string `json:"values"`
	Multiselect bool     `json:"multiselect,omitempty"`
}

type relationOptions struct {
	TargetEntityTypeID uuid.UUID   `json:"targetEntityTypeId"`
	Cardinality        Cardinality `json:"cardinality,omitempty"`
}

// DecodeConstraints builds the variant for kind from the wire options/validate objects.
// Empty payloads are treated as {}. Unknown properties are rejected so a typo never
// silently drops a constraint.
func DecodeConstraints(kind Kind, options, validate json.RawMessage) (Constraints, error) {
	var c Constraints
	switch kind {
	case KindText:
		var tc TextConstraints
		if err := decodeStrict(validate, &tc); err != nil {
			return nil, fmt.Errorf("decode text validate: %w", err)
		}
		c = tc
	case KindNumber:
		var nc NumberConstraints
		if err := decodeStrict(validate, &nc); err != nil {
			return nil, fmt.Errorf("decode number validate: %w", err)
		}
		c = nc
	case KindDate:
		var dc DateConstraints
		if err := decodeStrict(validate, &dc); err != nil {
			return nil, fmt.Errorf("decode date validate: %w", err)
		}
		c = dc
	case KindBoolean:
		c = BooleanConstraints{}
	case KindSelect:
		var so selectOptions
		if err := decodeStrict(options, &so); err != nil {
			return nil, fmt.Errorf("decode select options: %w", err)
		}
		c = SelectConstraints{Options: so.Values, Multiselect: so.Multiselect}
	case KindRelation:
		var ro relationOptions
		if err := decodeStrict(options, &ro); err != nil {
			return nil, fmt.Errorf("decode relation options: %w", err)
		}
		if ro.Cardinality == "" {
			ro.Cardinality = CardinalityOne
		}
		c = RelationConstraints{TargetEntityTypeID: ro.TargetEntityTypeID, Cardinality: ro.Cardinality}
	default:
		return nil, fmt.Errorf("unsupported field kind %q", kind)
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// EncodeConstraints renders a variant back into the wire options/validate objects.
func EncodeConstraints(c Constraints) (options json.RawMessage, validate json.RawMessage, err error) {
	empty := json.RawMessage(`{}`)
	switch v := c.(type) {
	case nil, BooleanConstraints:
		return empty, empty, nil
	case TextConstraints, NumberConstraints, DateConstraints:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, err
		}
		return empty, raw, nil
	case SelectConstraints:
		raw, err := json.Marshal(selectOptions{Values: v.Options, Multiselect: v.Multiselect})
		if err != nil {
			return nil, nil, err
		}
		return raw, empty, nil
	case RelationConstraints:
		raw, err := json.Marshal(relationOptions(v))
		if err != nil {
			return nil, nil, err
		}
		return raw, empty, nil
	default:
		return nil, nil, fmt.Errorf("unsupported constraints %T", c)
	}
}

func decodeStrict(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
