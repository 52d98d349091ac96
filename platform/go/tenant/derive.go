package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// CompactID returns the 32 hexadecimal characters of a UUID without dashes.
func CompactID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// EventChannel returns the LISTEN/NOTIFY channel dedicated to a tenant.
// Channel names are built from the parsed UUID only, so they are always safe identifiers.
func EventChannel(id uuid.UUID) string {
	return "tenant_events_" + CompactID(id)
}
