// Package filter compiles the generic record filter tree into a parameterized SQL
// predicate over the records.data JSONB column.
//
// User values only ever travel as bind parameters. Field keys reach SQL text solely
// through metadata-backed extraction paths, and every key is rechecked against the
// strict key pattern before it is rendered.
package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

// MaxDepth bounds combinator nesting.
const MaxDepth = 16

// Operators.
const (
	OpAnd      = "and"
	OpOr       = "or"
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
	OpIn       = "in"
	OpNin      = "nin"
)

// Filter is the wire form of a filter node. Leaves carry Field with Value (or Values for
// in/nin); and/or combinators carry Filters.
type Filter struct {
	Op      string   `json:"op"`
	Field   string   `json:"field,omitempty"`
	Value   any      `json:"value,omitempty"`
	Values  []any    `json:"values,omitempty"`
	Filters []Filter `json:"filters,omitempty"`
}

// Predicate is compiled SQL text with its positional arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// Compile renders node against fields. Placeholders are numbered from startIndex so the
// caller can prepend its own arguments (tenant and entity type). A nil node compiles to TRUE.
// Leaves may only reference fields flagged searchable; sorting is not restricted.
func Compile(node *Filter, fields metadata.FieldSet, startIndex int) (Predicate, error) {
	if startIndex < 1 {
		startIndex = 1
	}
	if node == nil {
		return Predicate{SQL: "TRUE"}, nil
	}

	c := &compiler{fields: fields, next: startIndex}
	sql, err := c.compile(*node, 0)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{SQL: sql, Args: c.args}, nil
}

type compiler struct {
	fields metadata.FieldSet
	args   []any
	next   int
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	placeholder := "$" + strconv.Itoa(c.next)
	c.next++
	return placeholder
}

func (c *compiler) compile(node Filter, depth int) (string, error) {
	if depth > MaxDepth {
		return "", apperrors.BadRequest("filter nesting exceeds %d levels", MaxDepth)
	}

	op := strings.ToLower(strings.TrimSpace(node.Op))
	switch op {
	case OpAnd, OpOr:
		return c.combine(op, node.Filters, depth)
	case "":
		return "", apperrors.BadRequest("filter op is required")
	default:
		return c.leaf(op, node)
	}
}

func (c *compiler) combine(op string, children []Filter, depth int) (string, error) {
	if len(children) == 0 {
		return "TRUE", nil
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := c.compile(child, depth+1)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, " "+strings.ToUpper(op)+" "), nil
}

func (c *compiler) leaf(op string, node Filter) (string, error) {
	field, ok := c.fields.Lookup(node.Field)
	if !ok {
		return "", apperrors.BadRequest("unknown filter field %q", node.Field)
	}
	if !metadata.ValidKey(field.Key) {
		return "", apperrors.BadRequest("unsafe field key %q", field.Key)
	}
	if !field.Searchable {
		return "", apperrors.BadRequest("field %q is not searchable", field.Key)
	}

	if field.IsMultiValued() {
		return c.multiValued(op, field, node)
	}

	expr := ScalarExpr(field)
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		if op != OpEq && op != OpNeq && !ordered(field.Kind) {
			return "", apperrors.BadRequest("operator %q is not supported on %s field %q", op, field.Kind, field.Key)
		}
		value, err := coerce(field, node.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", expr, comparison[op], c.bind(value)), nil

	case OpContains:
		if !textual(field.Kind) {
			return "", apperrors.BadRequest("operator %q is not supported on %s field %q", op, field.Kind, field.Key)
		}
		s, err := coerceString(field, node.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, TextExpr(field), c.bind("%"+escapeLike(s)+"%")), nil

	case OpIn, OpNin:
		list, err := coerceList(field, node)
		if err != nil {
			return "", err
		}
		sql := fmt.Sprintf("%s = ANY(%s)", expr, c.bind(list))
		if op == OpNin {
			return "NOT COALESCE(" + sql + ", FALSE)", nil
		}
		return sql, nil

	default:
		return "", apperrors.BadRequest("unsupported filter operator %q", op)
	}
}

// multiValued handles multiselect and relation-many fields stored as JSON arrays of strings.
func (c *compiler) multiValued(op string, field metadata.FieldDef, node Filter) (string, error) {
	expr := JSONExpr(field)
	switch op {
	case OpEq, OpContains, OpNeq:
		s, err := coerceString(field, node.Value)
		if err != nil {
			return "", err
		}
		sql := fmt.Sprintf("%s ? %s", expr, c.bind(s))
		if op == OpNeq {
			return "NOT COALESCE(" + sql + ", FALSE)", nil
		}
		return sql, nil

	case OpIn, OpNin:
		list, err := coerceList(field, node)
		if err != nil {
			return "", err
		}
		strs, ok := list.([]string)
		if !ok {
			return "", apperrors.BadRequest("field %q expects string values", field.Key)
		}
		sql := fmt.Sprintf("%s ?| %s", expr, c.bind(strs))
		if op == OpNin {
			return "NOT COALESCE(" + sql + ", FALSE)", nil
		}
		return sql, nil

	default:
		return "", apperrors.BadRequest("operator %q is not supported on multi-valued field %q", op, field.Key)
	}
}

var comparison = map[string]string{
	OpEq:  "=",
	OpNeq: "IS DISTINCT FROM",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// ScalarExpr is the typed extraction expression for a single-valued field. It matches the
// expression the indexer builds, so field indexes serve these predicates.
func ScalarExpr(field metadata.FieldDef) string {
	raw := TextExpr(field)
	switch field.Kind {
	case metadata.KindNumber:
		return raw + "::numeric"
	case metadata.KindBoolean:
		return raw + "::boolean"
	case metadata.KindDate:
		return "jsonb_text_to_timestamptz" + raw
	case metadata.KindRelation:
		return raw + "::uuid"
	default:
		return raw
	}
}

// TextExpr is the untyped text extraction expression for a field.
func TextExpr(field metadata.FieldDef) string {
	return fmt.Sprintf("(data->>'%s')", field.Key)
}

// JSONExpr is the raw JSONB extraction expression for a field.
func JSONExpr(field metadata.FieldDef) string {
	return fmt.Sprintf("(data->'%s')", field.Key)
}

func ordered(kind metadata.Kind) bool {
	switch kind {
	case metadata.KindNumber, metadata.KindDate, metadata.KindText:
		return true
	default:
		return false
	}
}

func textual(kind metadata.Kind) bool {
	switch kind {
	case metadata.KindText, metadata.KindSelect, metadata.KindRelation:
		return true
	default:
		return false
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// coerce converts a wire value to the Go type bound for the field's kind.
func coerce(field metadata.FieldDef, v any) (any, error) {
	if v == nil {
		return nil, apperrors.BadRequest("filter on %q requires a value", field.Key)
	}

	switch field.Kind {
	case metadata.KindNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, apperrors.BadRequest("filter on %q expects a number", field.Key)
		}
		return n, nil
	case metadata.KindBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, apperrors.BadRequest("filter on %q expects a boolean", field.Key)
			}
			return parsed, nil
		default:
			return nil, apperrors.BadRequest("filter on %q expects a boolean", field.Key)
		}
	case metadata.KindDate:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case string:
			ts, err := time.Parse(time.RFC3339, d)
			if err != nil {
				return nil, apperrors.BadRequest("filter on %q expects an RFC 3339 date-time", field.Key)
			}
			return ts, nil
		default:
			return nil, apperrors.BadRequest("filter on %q expects an RFC 3339 date-time", field.Key)
		}
	case metadata.KindRelation:
		s, err := coerceString(field, v)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, apperrors.BadRequest("filter on %q expects a record id", field.Key)
		}
		return id, nil
	default:
		return coerceString(field, v)
	}
}

func coerceString(field metadata.FieldDef, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", apperrors.BadRequest("filter on %q requires a value", field.Key)
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case bool, float64, float32, int, int32, int64, json.Number:
		return fmt.Sprint(s), nil
	default:
		return "", apperrors.BadRequest("filter on %q expects a scalar value", field.Key)
	}
}

// coerceList binds in/nin values as one typed array argument.
func coerceList(field metadata.FieldDef, node Filter) (any, error) {
	values := node.Values
	if len(values) == 0 {
		if list, ok := node.Value.([]any); ok {
			values = list
		}
	}
	if len(values) == 0 {
		return nil, apperrors.BadRequest("filter on %q requires values", field.Key)
	}

	if field.IsMultiValued() {
		out := make([]string, 0, len(values))
		for _, v := range values {
			s, err := coerceString(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}

	switch field.Kind {
	case metadata.KindNumber:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			n, err := coerce(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, n.(float64))
		}
		return out, nil
	case metadata.KindBoolean:
		out := make([]bool, 0, len(values))
		for _, v := range values {
			b, err := coerce(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, b.(bool))
		}
		return out, nil
	case metadata.KindDate:
		out := make([]time.Time, 0, len(values))
		for _, v := range values {
			ts, err := coerce(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, ts.(time.Time))
		}
		return out, nil
	case metadata.KindRelation:
		out := make([]uuid.UUID, 0, len(values))
		for _, v := range values {
			id, err := coerce(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, id.(uuid.UUID))
		}
		return out, nil
	default:
		out := make([]string, 0, len(values))
		for _, v := range values {
			s, err := coerceString(field, v)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}
