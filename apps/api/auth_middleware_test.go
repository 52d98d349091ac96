package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestExtractCredentials(t *testing.T) {
	tid := uuid.New()

	testCases := []struct {
		name    string
		claims  map[string]interface{}
		wantErr bool
	}{
		{
			name:   "tenant id claim",
			claims: map[string]interface{}{"user_id": "u-1", "tenantId": tid.String(), "roles": []interface{}{"viewer"}},
		},
		{
			name:    "missing tenant",
			claims:  map[string]interface{}{"user_id": "u-1"},
			wantErr: true,
		},
		{
			name:    "tenant slug instead of id",
			claims:  map[string]interface{}{"user_id": "u-1", "tenantId": "acme"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := extractCredentials(tc.claims)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tid.String(), *creds.TenantID)
			require.Equal(t, []string{"viewer"}, creds.Roles)
		})
	}
}
