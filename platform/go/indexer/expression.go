package indexer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

// Expression is an allowlisted index definition for one field.
type Expression struct {
	// Method is the index access method, "btree" or "gin".
	Method string
	// SQL is the parenthesized index expression.
	SQL string
}

// ExpressionFor picks the index expression from the field kind. Only the field key is
// rendered into the expression, after it passes the strict key pattern.
func ExpressionFor(field metadata.FieldDef) (Expression, error) {
	if !metadata.ValidKey(field.Key) {
		return Expression{}, fmt.Errorf("%w: field key %q", ErrUnsafeIdentifier, field.Key)
	}

	text := fmt.Sprintf("(data->>'%s')", field.Key)
	if field.IsMultiValued() {
		return Expression{Method: "gin", SQL: fmt.Sprintf("(data->'%s')", field.Key)}, nil
	}

	switch field.Kind {
	case metadata.KindNumber:
		return Expression{Method: "btree", SQL: "(" + text + "::numeric)"}, nil
	case metadata.KindDate:
		// text::timestamptz is not immutable; the helper function is declared so.
		return Expression{Method: "btree", SQL: "(jsonb_text_to_timestamptz" + text + ")"}, nil
	case metadata.KindBoolean:
		return Expression{Method: "btree", SQL: "(" + text + "::boolean)"}, nil
	case metadata.KindRelation:
		return Expression{Method: "btree", SQL: "(" + text + "::uuid)"}, nil
	default:
		return Expression{Method: "btree", SQL: "(" + text + ")"}, nil
	}
}

// CreateStatement renders the non-blocking partial index DDL for a job. The tenant and
// entity type literals come from parsed uuid values, which render as hex and dashes only.
func CreateStatement(name string, tenantID, entityTypeID uuid.UUID, field metadata.FieldDef) (string, error) {
	if err := ValidateIndexName(name); err != nil {
		return "", err
	}
	if tenantID == uuid.Nil || entityTypeID == uuid.Nil {
		return "", fmt.Errorf("%w: tenant and entity type are required", ErrUnsafeIdentifier)
	}

	expr, err := ExpressionFor(field)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS %s ON records USING %s %s WHERE tenant_id = '%s'::uuid AND entity_type_id = '%s'::uuid",
		name, expr.Method, expr.SQL, tenantID.String(), entityTypeID.String(),
	), nil
}

// DropStatement renders the DDL removing a leftover invalid index.
func DropStatement(name string) (string, error) {
	if err := ValidateIndexName(name); err != nil {
		return "", err
	}
	return "DROP INDEX CONCURRENTLY IF EXISTS " + name, nil
}
