package sqlassets

import _ "embed"

// CoreSQL creates the tenant, metadata, record, edge and index job tables.
//
//go:embed schema/core.sql
var CoreSQL string

// RLSSQL enables row-level isolation policies on every tenant-owned table.
//
//go:embed schema/rls.sql
var RLSSQL string
