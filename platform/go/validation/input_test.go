package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/apperrors"
)

type sampleInput struct {
	Key   string   `json:"key" validate:"required,metakey"`
	Kind  string   `json:"kind" validate:"required,fieldkind"`
	Label string   `json:"label" validate:"required,max=8"`
	Roles []string `json:"roles" validate:"dive,oneof=admin viewer"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sampleInput{Key: "budget", Kind: "number", Label: "Budget", Roles: []string{"viewer"}}))

	err := Struct(sampleInput{Key: "Budget!", Kind: "json", Label: "far too long", Roles: []string{"owner"}})
	require.True(t, errors.Is(err, apperrors.ErrValidation))

	var vErr *apperrors.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Len(t, vErr.Fields, 4)
	require.True(t, vErr.HasField("key"))
	require.True(t, vErr.HasField("kind"))
	require.True(t, vErr.HasField("label"))
	require.True(t, vErr.HasField("roles[0]"))
	require.Equal(t, "metakey", vErr.Fields[0].Kind)
}
