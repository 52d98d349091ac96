// Package access evaluates action permissions and field-level ACLs.
//
// Everything is secure by default: unknown actions, unknown fields and missing or empty
// ACL lists deny, for every role including admin.
package access

import (
	"sort"

	"github.com/zenGate-Global/palmyra-records/platform/go/metadata"
)

// Roles.
const (
	RoleAdmin       = "admin"
	RoleBuilder     = "builder"
	RoleContributor = "contributor"
	RoleViewer      = "viewer"
)

// Actions.
const (
	SchemaRead     = "schema:read"
	SchemaWrite    = "schema:write"
	RecordRead     = "record:read"
	RecordCreate   = "record:create"
	RecordUpdate   = "record:update"
	RelationRead   = "relation:read"
	RelationWrite  = "relation:write"
	IndexJobsRead  = "index:read"
	IndexJobsWrite = "index:write"
)

var actionRoles = map[string][]string{
	SchemaRead:     {RoleAdmin, RoleBuilder, RoleContributor, RoleViewer},
	SchemaWrite:    {RoleAdmin, RoleBuilder},
	RecordRead:     {RoleAdmin, RoleBuilder, RoleContributor, RoleViewer},
	RecordCreate:   {RoleAdmin, RoleBuilder, RoleContributor},
	RecordUpdate:   {RoleAdmin, RoleBuilder, RoleContributor},
	RelationRead:   {RoleAdmin, RoleBuilder, RoleContributor, RoleViewer},
	RelationWrite:  {RoleAdmin, RoleBuilder, RoleContributor},
	IndexJobsRead:  {RoleAdmin, RoleBuilder},
	IndexJobsWrite: {RoleAdmin},
}

// Identity is the caller as seen by the access layer.
type Identity interface {
	GetID() string
	GetRoles() []string
}

// HasPermission reports whether user holds at least one role allowed for action.
func HasPermission(user Identity, action string) bool {
	if user == nil {
		return false
	}
	allowed, ok := actionRoles[action]
	if !ok {
		return false
	}
	return anyRole(user.GetRoles(), allowed)
}

// CheckWritePermissions returns the sorted payload keys user may not write. A key is
// forbidden when its field is unknown, its write ACL is empty, or user lacks every listed
// role. An empty result means the whole payload may be written.
func CheckWritePermissions(user Identity, fields metadata.FieldSet, payload map[string]any) []string {
	var forbidden []string
	for key := range payload {
		f, ok := fields.Lookup(key)
		if !ok || user == nil || !anyRole(user.GetRoles(), f.ACL.Write) {
			forbidden = append(forbidden, key)
		}
	}
	sort.Strings(forbidden)
	return forbidden
}

// FilterReadableFields returns a copy of data holding only keys user may read. Unknown
// keys are dropped silently.
func FilterReadableFields(user Identity, fields metadata.FieldSet, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	if user == nil {
		return out
	}
	roles := user.GetRoles()
	for key, value := range data {
		f, ok := fields.Lookup(key)
		if ok && anyRole(roles, f.ACL.Read) {
			out[key] = value
		}
	}
	return out
}

// CanRead reports whether user may read field.
func CanRead(user Identity, field metadata.FieldDef) bool {
	return user != nil && anyRole(user.GetRoles(), field.ACL.Read)
}

func anyRole(have, allowed []string) bool {
	for _, a := range allowed {
		for _, h := range have {
			if h == a {
				return true
			}
		}
	}
	return false
}
