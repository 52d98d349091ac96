package indexer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeIdentifier is returned when a generated identifier contains characters that
// may not be interpolated into DDL.
var ErrUnsafeIdentifier = errors.New("unsafe identifier")

const (
	indexNamePrefix = "idx_fd_"
	// MaxIndexNameLen stays below the 63 byte Postgres identifier limit.
	MaxIndexNameLen = 60
)

var indexNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,59}$`)

// BuildIndexName derives the deterministic index name of a field: separators stripped,
// prefixed, lowercased and truncated. The result is validated, never trusted.
func BuildIndexName(fieldID string) (string, error) {
	compact := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(fieldID), "-", ""))
	if compact == "" {
		return "", fmt.Errorf("%w: empty field id", ErrUnsafeIdentifier)
	}

	name := indexNamePrefix + compact
	if len(name) > MaxIndexNameLen {
		name = name[:MaxIndexNameLen]
	}
	if err := ValidateIndexName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateIndexName checks name against the strict identifier charset.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeIdentifier, name)
	}
	return nil
}
