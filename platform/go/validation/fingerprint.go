package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fingerprint returns a deterministic SHA-256 hex digest of a schema document.
// encoding/json writes map keys in sorted order, so equal documents always hash equally.
func fingerprint(document map[string]any) ([]byte, string, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, "", fmt.Errorf("encode schema document: %w", err)
	}

	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}
