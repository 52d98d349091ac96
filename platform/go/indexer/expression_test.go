package indexer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

func TestExpressionFor(t *testing.T) {
	target := uuid.New()
	testCases := []struct {
		name   string
		field  metadata.FieldDef
		method string
		sql    string
	}{
		{name: "number", field: metadata.FieldDef{Key: "budget", Kind: metadata.KindNumber, Constraints: metadata.NumberConstraints{}}, method: "btree", sql: "((data->>'budget')::numeric)"},
		{name: "relation one", field: metadata.FieldDef{Key: "owner", Kind: metadata.KindRelation, Constraints: metadata.RelationConstraints{TargetEntityTypeID: target, Cardinality: metadata.CardinalityOne}}, method: "btree", sql: "((data->>'owner')::uuid)"},
		{name: "boolean", field: metadata.FieldDef{Key: "active", Kind: metadata.KindBoolean, Constraints: metadata.BooleanConstraints{}}, method: "btree", sql: "((data->>'active')::boolean)"},
		{name: "date", field: metadata.FieldDef{Key: "due", Kind: metadata.KindDate, Constraints: metadata.DateConstraints{}}, method: "btree", sql: "(jsonb_text_to_timestamptz(data->>'due'))"},
		{name: "text default", field: metadata.FieldDef{Key: "title", Kind: metadata.KindText, Constraints: metadata.TextConstraints{}}, method: "btree", sql: "((data->>'title'))"},
		{name: "select default", field: metadata.FieldDef{Key: "status", Kind: metadata.KindSelect, Constraints: metadata.SelectConstraints{Options: []string{"a"}}}, method: "btree", sql: "((data->>'status'))"},
		{name: "multiselect", field: metadata.FieldDef{Key: "tags", Kind: metadata.KindSelect, Constraints: metadata.SelectConstraints{Options: []string{"a"}, Multiselect: true}}, method: "gin", sql: "(data->'tags')"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := ExpressionFor(tc.field)
			require.NoError(t, err)
			require.Equal(t, tc.method, expr.Method)
			require.Equal(t, tc.sql, expr.SQL)
		})
	}
}

func TestExpressionForRejectsUnsafeKey(t *testing.T) {
	_, err := ExpressionFor(metadata.FieldDef{Key: "x'); DROP TABLE records; --", Kind: metadata.KindText, Constraints: metadata.TextConstraints{}})
	require.ErrorIs(t, err, ErrUnsafeIdentifier)
}

func TestCreateStatement(t *testing.T) {
	tenantID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	entityTypeID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	field := metadata.FieldDef{Key: "owner", Kind: metadata.KindRelation, Constraints: metadata.RelationConstraints{TargetEntityTypeID: uuid.New(), Cardinality: metadata.CardinalityOne}}

	stmt, err := CreateStatement("idx_fd_abc", tenantID, entityTypeID, field)
	require.NoError(t, err)
	require.Equal(t,
		"CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_fd_abc ON records USING btree ((data->>'owner')::uuid) WHERE tenant_id = '11111111-1111-1111-1111-111111111111'::uuid AND entity_type_id = '22222222-2222-2222-2222-222222222222'::uuid",
		stmt)

	_, err = CreateStatement("idx; drop", tenantID, entityTypeID, field)
	require.ErrorIs(t, err, ErrUnsafeIdentifier)

	_, err = CreateStatement("idx_fd_abc", uuid.Nil, entityTypeID, field)
	require.ErrorIs(t, err, ErrUnsafeIdentifier)

	drop, err := DropStatement("idx_fd_abc")
	require.NoError(t, err)
	require.Equal(t, "DROP INDEX CONCURRENTLY IF EXISTS idx_fd_abc", drop)
}
