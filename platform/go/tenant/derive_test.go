package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompactID(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	require.Equal(t, "0f8fad5bd9cb469fa16570867728950e", CompactID(id))
}

func TestEventChannel(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	require.Equal(t, "tenant_events_0f8fad5bd9cb469fa16570867728950e", EventChannel(id))
}

func TestContextRoundTrip(t *testing.T) {
	tc := New(uuid.New())
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, tc, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}

func TestContextValidate(t *testing.T) {
	require.ErrorIs(t, Context{}.Validate(), ErrMissingTenant)
	require.NoError(t, New(uuid.New()).Validate())
}
