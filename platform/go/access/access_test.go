package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

func user(roles ...string) *auth.UserCredentials {
	return &auth.UserCredentials{Id: "user-1", Roles: roles}
}

func TestHasPermission(t *testing.T) {
	testCases := []struct {
		name   string
		roles  []string
		action string
		want   bool
	}{
		{name: "viewer cannot create records", roles: []string{RoleViewer}, action: RecordCreate, want: false},
		{name: "viewer reads records", roles: []string{RoleViewer}, action: RecordRead, want: true},
		{name: "contributor creates records", roles: []string{RoleContributor}, action: RecordCreate, want: true},
		{name: "contributor cannot change schema", roles: []string{RoleContributor}, action: SchemaWrite, want: false},
		{name: "builder changes schema", roles: []string{RoleBuilder}, action: SchemaWrite, want: true},
		{name: "any role suffices", roles: []string{RoleViewer, RoleBuilder}, action: SchemaWrite, want: true},
		{name: "only admin retries index jobs", roles: []string{RoleBuilder}, action: IndexJobsWrite, want: false},
		{name: "admin retries index jobs", roles: []string{RoleAdmin}, action: IndexJobsWrite, want: true},
		{name: "unknown action denies admin", roles: []string{RoleAdmin}, action: "record:delete", want: false},
		{name: "no roles", roles: nil, action: RecordRead, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, HasPermission(user(tc.roles...), tc.action))
		})
	}

	require.False(t, HasPermission(nil, RecordRead))
}

func aclFields() metadata.FieldSet {
	return metadata.NewFieldSet([]metadata.FieldDef{
		{Key: "title", Active: true, ACL: metadata.ACL{Read: []string{RoleViewer, RoleContributor}, Write: []string{RoleContributor}}},
		{Key: "budget", Active: true, ACL: metadata.ACL{Read: []string{RoleContributor}, Write: []string{RoleAdmin}}},
		{Key: "secret", Active: true},
	})
}

func TestCheckWritePermissions(t *testing.T) {
	payload := map[string]any{"title": "x", "budget": 1, "secret": "s", "unknown": true}

	require.Equal(t, []string{"budget", "secret", "unknown"}, CheckWritePermissions(user(RoleContributor), aclFields(), payload))
	require.Equal(t, []string{"secret", "title", "unknown"}, CheckWritePermissions(user(RoleAdmin), aclFields(), payload))
	require.Empty(t, CheckWritePermissions(user(RoleContributor), aclFields(), map[string]any{"title": "ok"}))
	require.Empty(t, CheckWritePermissions(user(RoleContributor), aclFields(), map[string]any{}))
}

func TestFilterReadableFieldsIsSecureByDefault(t *testing.T) {
	data := map[string]any{"title": "x", "budget": 10, "secret": "s", "stale": 1}

	require.Equal(t, map[string]any{"title": "x"}, FilterReadableFields(user(RoleViewer), aclFields(), data))
	require.Equal(t, map[string]any{"title": "x", "budget": 10}, FilterReadableFields(user(RoleContributor), aclFields(), data))

	// no read ACL: hidden even from admin
	adminView := FilterReadableFields(user(RoleAdmin), aclFields(), data)
	require.NotContains(t, adminView, "secret")
	require.Empty(t, adminView)

	require.Empty(t, FilterReadableFields(nil, aclFields(), data))
	require.Len(t, data, 4, "input must not be mutated")
}

func TestCanRead(t *testing.T) {
	fields := aclFields()
	title, _ := fields.Lookup("title")
	secret, _ := fields.Lookup("secret")

	require.True(t, CanRead(user(RoleViewer), title))
	require.False(t, CanRead(user(RoleAdmin), secret))
}
