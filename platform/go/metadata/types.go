// Package metadata holds the tenant-defined schema model: entity types and the field
// definitions that describe their records.
package metadata

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Kind is the declared data kind of a field.
type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindSelect   Kind = "select"
	KindRelation Kind = "relation"
	KindBoolean  Kind = "boolean"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindText, KindNumber, KindDate, KindSelect, KindRelation, KindBoolean}

// ParseKind validates a wire kind string.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported field kind %q", s)
}

// keyPattern restricts entity type and field keys to safe lowercase identifiers.
// Field keys are embedded in generated JSONB extraction paths, so nothing outside this
// charset may ever reach SQL text.
var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidKey reports whether key is a legal entity type or field key.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// EntityType is a tenant-defined record template.
type EntityType struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"-"`
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ACL lists the roles allowed to read and write a field. An empty list denies everyone.
type ACL struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
}

// FieldDef describes one attribute of an entity type. UniqueWithinType rejects record
// writes repeating another record's non-null value; only Searchable fields may appear in
// search filters.
type FieldDef struct {
	ID               uuid.UUID   `json:"id"`
	TenantID         uuid.UUID   `json:"-"`
	EntityTypeID     uuid.UUID   `json:"entityTypeId"`
	Key              string      `json:"key"`
	Label            string      `json:"label"`
	Kind             Kind        `json:"kind"`
	Required         bool        `json:"required"`
	UniqueWithinType bool        `json:"uniqueWithinType"`
	Searchable       bool        `json:"searchable"`
	Indexed          bool        `json:"indexed"`
	Constraints      Constraints `json:"-"`
	ACL              ACL         `json:"acl"`
	Position         int         `json:"position"`
	Active           bool        `json:"active"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// IsMultiValued reports whether the field stores a list of values.
func (f FieldDef) IsMultiValued() bool {
	switch c := f.Constraints.(type) {
	case SelectConstraints:
		return c.Multiselect
	case RelationConstraints:
		return c.Cardinality == CardinalityMany
	default:
		return false
	}
}

// FieldSet indexes a list of field definitions by key.
type FieldSet struct {
	ordered []FieldDef
	byKey   map[string]FieldDef
}

// NewFieldSet builds a FieldSet ordered by position then key. Inactive fields are dropped.
func NewFieldSet(fields []FieldDef) FieldSet {
	ordered := make([]FieldDef, 0, len(fields))
	byKey := make(map[string]FieldDef, len(fields))
	for _, f := range fields {
		if !f.Active {
			continue
		}
		ordered = append(ordered, f)
		byKey[f.Key] = f
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].Key < ordered[j].Key
	})
	return FieldSet{ordered: ordered, byKey: byKey}
}

// Lookup returns the field with the given key.
func (s FieldSet) Lookup(key string) (FieldDef, bool) {
	f, ok := s.byKey[key]
	return f, ok
}

// Fields returns the ordered active fields.
func (s FieldSet) Fields() []FieldDef {
	return s.ordered
}

// Len returns the number of active fields.
func (s FieldSet) Len() int {
	return len(s.ordered)
}
