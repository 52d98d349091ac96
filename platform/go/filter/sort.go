package filter

import (
	"strings"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

// Sort is a validated single-field ordering.
type Sort struct {
	Expr string
	Desc bool
}

// DefaultSort orders newest records first.
var DefaultSort = Sort{Expr: "created_at", Desc: true}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"version":   "version",
}

// ParseSort resolves raw ("field" or "-field") against the record columns and field keys.
// Only one sort field is supported.
func ParseSort(raw string, fields metadata.FieldSet) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}
	if strings.Contains(raw, ",") {
		return Sort{}, apperrors.BadRequest("multi-field sort is not supported")
	}

	desc := false
	switch {
	case strings.HasPrefix(raw, "-"):
		desc = true
		raw = raw[1:]
	case strings.HasPrefix(raw, "+"):
		raw = raw[1:]
	}

	if column, ok := sortColumns[raw]; ok {
		return Sort{Expr: column, Desc: desc}, nil
	}

	field, ok := fields.Lookup(raw)
	if !ok {
		return Sort{}, apperrors.BadRequest("unknown sort field %q", raw)
	}
	if field.IsMultiValued() || !metadata.ValidKey(field.Key) {
		return Sort{}, apperrors.BadRequest("field %q cannot be sorted", raw)
	}
	return Sort{Expr: ScalarExpr(field), Desc: desc}, nil
}

// OrderBy renders the ORDER BY list, tie-broken by id for stable pagination.
func (s Sort) OrderBy() string {
	if s.Expr == "" {
		s = DefaultSort
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return s.Expr + " " + dir + " NULLS LAST, id " + dir
}
