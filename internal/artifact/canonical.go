package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize re-encodes a JSON document with stable key ordering and no
// insignificant whitespace, so identical logical content always yields
// identical bytes regardless of producer. encoding/json sorts map keys on
// marshal, which is the whole trick.
func Canonicalize(raw []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return json.Marshal(doc)
}

// Marshal canonicalizes an in-memory document.
func Marshal(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return Canonicalize(raw)
}

// HashBytes returns the hex SHA-256 of the given bytes. Callers must pass
// canonicalized bytes when the hash is used as an artifact identity.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
